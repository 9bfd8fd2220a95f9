package jobs

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/wookiee/ai-assistant/pkg/commsutil"
	"github.com/wookiee/ai-assistant/pkg/digest"
)

const subscribeTestPrefix = "jobs:subscribe_integration_test"

func startTestServer(t *testing.T) *comms.Conn {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", subscribeTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", subscribeTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", subscribeTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestSubscribe_RequestReply(t *testing.T) {
	nc := startTestServer(t)
	runner := &fakeRunner{res: &digest.Result{Processed: 2}}
	ctx := context.Background()

	sub, err := Subscribe(ctx, nc, "test.jobs", NewRouter(runner, &fakeHealth{status: "ok"}), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", subscribeTestPrefix, err)
	}
	defer sub.Unsubscribe()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := Request(reqCtx, nc, "test.jobs", MethodMorningDigest, nil)
	if err != nil {
		t.Fatalf("%s - Request: %v", subscribeTestPrefix, err)
	}
	if !resp.Ok || resp.ID == "" {
		t.Fatalf("%s - response = %+v", subscribeTestPrefix, resp)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || result["usersNotified"] != float64(2) || result["kind"] != "morning" {
		t.Errorf("%s - result = %v", subscribeTestPrefix, resp.Result)
	}

	resp, err = Request(reqCtx, nc, "test.jobs", MethodEveningDigest, DigestParams{DryRun: true})
	if err != nil {
		t.Fatalf("%s - Request: %v", subscribeTestPrefix, err)
	}
	if !resp.Ok {
		t.Errorf("%s - dry run response = %+v", subscribeTestPrefix, resp.Error)
	}

	resp, err = Request(reqCtx, nc, "test.jobs", MethodHealth, nil)
	if err != nil || !resp.Ok {
		t.Fatalf("%s - health: %v %+v", subscribeTestPrefix, err, resp)
	}
}

func TestSubscribe_InvalidPayload(t *testing.T) {
	nc := startTestServer(t)
	sub, err := Subscribe(context.Background(), nc, "test.jobs", NewRouter(nil, nil), time.Second)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", subscribeTestPrefix, err)
	}
	defer sub.Unsubscribe()

	msg, err := nc.Request("test.jobs", []byte("not json"), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - request: %v", subscribeTestPrefix, err)
	}
	var resp JobResponse
	if err := commsutil.DecodePayload(msg.Data, &resp); err != nil {
		t.Fatalf("%s - decode: %v", subscribeTestPrefix, err)
	}
	if resp.Ok || resp.Error == nil || resp.Error.Code != "INVALID_REQUEST" {
		t.Errorf("%s - response = %+v", subscribeTestPrefix, resp)
	}
}
