package hours

import (
	"testing"
	"time"
)

var weekJa = []string{
	"月曜日: 11:00～22:00",
	"火曜日: 定休日",
	"水曜日: 24時間営業",
	"木曜日: 18時00分～翌2時00分",
	"金曜日: 11時30分～14時30分、17時00分～22時00分",
	"土曜日: 営業時間は店舗にお問い合わせください",
}

func TestIsOpenAtAssumesOpenWithoutData(t *testing.T) {
	if !IsOpenAt(nil, "12:00", time.Monday) {
		t.Fatal("no data should assume open")
	}
	if !IsOpenAt(weekJa, "12:00", time.Sunday) {
		t.Fatal("missing weekday line should assume open")
	}
}

func TestIsOpenAtPlainSpan(t *testing.T) {
	if !IsOpenAt(weekJa, "12:00", time.Monday) {
		t.Fatal("12:00 should be inside 11:00-22:00")
	}
	if IsOpenAt(weekJa, "22:30", time.Monday) {
		t.Fatal("22:30 should be outside 11:00-22:00")
	}
}

func TestIsOpenAtClosedDay(t *testing.T) {
	if IsOpenAt(weekJa, "12:00", time.Tuesday) {
		t.Fatal("定休日 must be closed")
	}
}

func TestIsOpenAtAllDay(t *testing.T) {
	if !IsOpenAt(weekJa, "03:30", time.Wednesday) {
		t.Fatal("24時間営業 must always be open")
	}
}

func TestIsOpenAtOvernightSpan(t *testing.T) {
	// 18:00 to 02:00 crosses midnight.
	if !IsOpenAt(weekJa, "23:30", time.Thursday) {
		t.Fatal("23:30 should be open for an overnight span")
	}
	if !IsOpenAt(weekJa, "01:00", time.Thursday) {
		t.Fatal("01:00 should be open for an overnight span")
	}
	if IsOpenAt(weekJa, "12:00", time.Thursday) {
		t.Fatal("midday should be closed for an 18:00-02:00 venue")
	}
}

func TestIsOpenAtMultipleSpans(t *testing.T) {
	if !IsOpenAt(weekJa, "12:00", time.Friday) {
		t.Fatal("lunch service span should be open")
	}
	if IsOpenAt(weekJa, "15:30", time.Friday) {
		t.Fatal("between lunch and dinner service should be closed")
	}
	if !IsOpenAt(weekJa, "21:00", time.Friday) {
		t.Fatal("dinner service span should be open")
	}
}

func TestIsOpenAtUnparsableLineAssumesOpen(t *testing.T) {
	if !IsOpenAt(weekJa, "12:00", time.Saturday) {
		t.Fatal("an unparsable weekday line should assume open")
	}
}

func TestIsOpenAtEnglishDescriptions(t *testing.T) {
	week := []string{
		"Monday: 9:00 – 17:00",
		"Tuesday: Closed",
	}
	if !IsOpenAt(week, "10:00", time.Monday) {
		t.Fatal("10:00 should be open")
	}
	if IsOpenAt(week, "10:00", time.Tuesday) {
		t.Fatal("Closed day must be closed")
	}
}

func TestWarningFor(t *testing.T) {
	if w := WarningFor(weekJa, "12:00", time.Monday); w != "" {
		t.Fatalf("open venue got warning %q", w)
	}
	if w := WarningFor(weekJa, "12:00", time.Tuesday); w == "" {
		t.Fatal("closed venue should get a warning")
	}
}
