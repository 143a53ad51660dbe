package booking

import "time"

// RefundCutoff - порог для обоих правил возврата
const RefundCutoff = 15 * time.Minute

// IsRefundEligible решает, возвращаются ли деньги при отмене: администратор всегда,
// пользователь - если до начала осталось не меньше RefundCutoff
func IsRefundEligible(scheduledStart, now time.Time, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	return scheduledStart.Sub(now) >= RefundCutoff
}

// IsRefundRequestWindow проверяет, можно ли еще запросить возврат: с начала сессии
// прошло не больше RefundCutoff. Это отдельное правило с обратной точкой отсчета
func IsRefundRequestWindow(scheduledStart, now time.Time) bool {
	return now.Sub(scheduledStart) <= RefundCutoff
}
