package billing

import "time"

func dateUTC(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(y int, m time.Month) int {
	return dateUTC(y, m+1, 0).Day()
}

// anniversaryDay is the creation day-of-month clamped to the length of the
// given month, so a server created on the 31st renews on the 30th in April.
func anniversaryDay(created time.Time, y int, m time.Month) int {
	d := created.UTC().Day()
	if n := daysIn(y, m); d > n {
		return n
	}
	return d
}

// IsAnniversary reports whether at falls on the server's billing-cycle
// anniversary: the day-of-month it was created on. A server created on the
// 31st has no anniversary in shorter months.
func IsAnniversary(created, at time.Time) bool {
	return at.UTC().Day() == created.UTC().Day()
}

// BillingPeriod returns the first and last day (inclusive, midnight UTC) of
// the billing cycle containing at. The cycle starts on the anniversary in
// at's month, or the previous month when at is earlier in the month, and
// ends the day before the next anniversary.
func BillingPeriod(created, at time.Time) (start, end time.Time) {
	at = at.UTC()
	y, m := at.Year(), at.Month()
	if at.Day() < anniversaryDay(created, y, m) {
		prev := dateUTC(y, m-1, 1)
		y, m = prev.Year(), prev.Month()
	}
	start = dateUTC(y, m, anniversaryDay(created, y, m))

	next := dateUTC(y, m+1, 1)
	end = dateUTC(next.Year(), next.Month(), anniversaryDay(created, next.Year(), next.Month())).AddDate(0, 0, -1)
	return start, end
}
