package dispatcher

import "github.com/wookiee/ai-assistant/pkg/assistant"

const (
	msgHelp = "Доступные команды:\n" +
		"/start <email> — привязать Telegram к Bitrix24 пользователю\n" +
		"/code <код> — подтвердить привязку кодом из Bitrix24\n" +
		"/today — задачи на сегодня и просроченные\n" +
		"/timezone [зона] — показать или изменить часовой пояс\n" +
		"/help — помощь"

	msgStartUsage    = "Укажите email: /start your@email"
	msgCodeUsage     = "Укажите код: /code 123456"
	msgCodeSent      = "Код отправлен в Bitrix24 (im.notify). Введите /code 123456 чтобы завершить привязку."
	msgLinked        = "Привязка завершена. Используйте /today для дайджеста."
	msgTimezoneSet   = "Часовой пояс установлен: %s"
	msgTimezoneShow  = "Текущий часовой пояс: %s. Изменить: /timezone Europe/Moscow"
	msgInternalError = "Произошла ошибка. Попробуйте позже."
)

// errorMessages maps assistant error codes to replies.
var errorMessages = map[string]string{
	assistant.CodeInvalidArgument: "Некорректный запрос. Используйте /help.",
	assistant.CodeAlreadyLinked:   "Вы уже зарегистрированы. Используйте /today для дайджеста.",
	assistant.CodeNotLinked:       "Сначала выполните /start <email> для привязки.",
	assistant.CodeCRMUserNotFound: "Не удалось найти пользователя в Bitrix24 по этому email.",
	assistant.CodeCRMUnavailable:  "Bitrix24 сейчас недоступен. Попробуйте позже.",
	assistant.CodeNotifyFailed:    "Не удалось отправить код через Bitrix24. Проверьте права webhook (im.notify).",
	assistant.CodeNoPendingCode:   "Не найдено ожидающих кодов. Выполните /start <email>.",
	assistant.CodeCodeExpired:     "Код истёк. Выполните /start заново.",
	assistant.CodeCodeInvalid:     "Неверный код. Повторите /start для нового кода.",
	assistant.CodeTooManyAttempts: "Слишком много неверных попыток. Выполните /start заново.",
	assistant.CodeInvalidTimezone: "Неизвестный часовой пояс. Пример: /timezone Europe/Moscow",
}

// commandErrorMessages override errorMessages for a specific command.
var commandErrorMessages = map[string]map[string]string{
	CommandStart: {assistant.CodeInvalidArgument: msgStartUsage},
	CommandCode: {
		assistant.CodeInvalidArgument: msgCodeUsage,
		assistant.CodeCRMUserNotFound: "Пользователь в Bitrix24 не найден. Проверьте email и выполните /start заново.",
	},
}
