package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказа нет в реестре.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrderID - заказ с таким идентификатором уже зарегистрирован.
	ErrDuplicateOrderID = errors.New("duplicate order id")
	// ErrInvalidTransition - переход недопустим для текущего статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownOrderType - тип заказа не распознан.
	ErrUnknownOrderType = errors.New("unknown order type")
	// ErrUnknownStatus - статус в снапшоте не распознан.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrParse - файл заказа не удалось разобрать.
	ErrParse = errors.New("order file parse failed")
	// ErrUnsupportedFile - расширение файла не поддерживается парсером.
	ErrUnsupportedFile = errors.New("unsupported order file extension")
	// ErrWatchSetup - не удалось поставить наблюдение за каталогом.
	ErrWatchSetup = errors.New("watch setup failed")
	// ErrWatcherRunning - watcher уже запущен.
	ErrWatcherRunning = errors.New("watcher already running")
	// ErrStopTimeout - фоновый цикл watcher не завершился за отведённое время.
	ErrStopTimeout = errors.New("watcher stop timed out")
	// ErrProbeTimeout - файл так и не стал читаемым; только для логов и метрик.
	ErrProbeTimeout = errors.New("file never became readable")
	// ErrPersistenceWrite - снапшот заказа не удалось записать.
	ErrPersistenceWrite = errors.New("snapshot write failed")
	// ErrTipNotAdjustable - чаевые кухне меняются только у заказов в зале.
	ErrTipNotAdjustable = errors.New("tip can only be adjusted for dine-in orders")
	// ErrInvalidTip - сумма чаевых отрицательная или не число.
	ErrInvalidTip = errors.New("invalid tip amount")
	// ErrLoopStopped - очередь событий потребителя уже остановлена.
	ErrLoopStopped = errors.New("event loop stopped")
)

// IsInvalidTransition проверяет, является ли ошибка недопустимым переходом.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsParseFailure проверяет, относится ли ошибка к разбору файла заказа.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrUnsupportedFile) || errors.Is(err, ErrUnknownOrderType)
}
