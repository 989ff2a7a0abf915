package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scope 唯一标识一个排班周期：月计划使用 Year + Month，周计划使用 Year + Week（ISO 周号），
// Department 可选，用于区分不同科室的计划
type Scope struct {
	Year       int    `json:"year"`
	Month      int    `json:"month,omitempty"`
	Week       int    `json:"week,omitempty"`
	Department string `json:"department,omitempty"`
}

var (
	monthScopePattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	weekScopePattern  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
)

// ParseScope 解析形如 2025-06（月计划）或 2025-W23（周计划）的周期参数
func ParseScope(param string, department string) (Scope, error) {
	if m := monthScopePattern.FindStringSubmatch(param); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Scope{}, fmt.Errorf("无效的月份: %d", month)
		}
		return Scope{Year: year, Month: month, Department: department}, nil
	}

	if m := weekScopePattern.FindStringSubmatch(param); m != nil {
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		if week < 1 || week > 53 {
			return Scope{}, fmt.Errorf("无效的周号: %d", week)
		}
		return Scope{Year: year, Week: week, Department: department}, nil
	}

	return Scope{}, fmt.Errorf("无效的排班周期参数: %s", param)
}

// Key 返回周期的唯一字符串标识，用作锁的键和缓存的键
func (s Scope) Key() string {
	var b strings.Builder
	if s.Month != 0 {
		fmt.Fprintf(&b, "%04d-%02d", s.Year, s.Month)
	} else {
		fmt.Fprintf(&b, "%04d-W%02d", s.Year, s.Week)
	}
	if s.Department != "" {
		fmt.Fprintf(&b, "@%s", s.Department)
	}
	return b.String()
}

// IsWeekly 返回该周期是否为周计划
func (s Scope) IsWeekly() bool {
	return s.Week != 0
}

// DateOf 将格子中的 day 解析为具体日期：月计划中 day 为当月的第几天，
// 周计划中 day 为 ISO 星期几（1 = 周一）
func (s Scope) DateOf(day int32) (time.Time, error) {
	if s.IsWeekly() {
		if day < 1 || day > 7 {
			return time.Time{}, fmt.Errorf("无效的星期: %d", day)
		}
		return isoWeekStart(s.Year, s.Week).AddDate(0, 0, int(day-1)), nil
	}

	first := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
	lastDay := int32(first.AddDate(0, 1, -1).Day())
	if day < 1 || day > lastDay {
		return time.Time{}, fmt.Errorf("无效的日期: %d", day)
	}
	return first.AddDate(0, 0, int(day-1)), nil
}

// Range 返回该周期覆盖的日期区间 [start, end]，用于圈定需要参与冲突检测的缺勤记录
func (s Scope) Range() (time.Time, time.Time) {
	if s.IsWeekly() {
		start := isoWeekStart(s.Year, s.Week)
		return start, start.AddDate(0, 0, 6)
	}
	start := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// isoWeekStart 计算某年某 ISO 周的周一
// 按照 ISO 8601 的规则，1 月 4 日永远落在第一周
func isoWeekStart(year int, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
