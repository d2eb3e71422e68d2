package linebot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

// noStation files people listed before any station line.
const noStation = "未指定"

var (
	leaveHeaderRe = regexp.MustCompile(`(\d+)年\s*(\d+|元)月`)
	leaveNameRe   = regexp.MustCompile(`^\p{Han}+`)
	leaveDateRe   = regexp.MustCompile(`\d{1,2}/\d{1,2}`)
	leaveReasonRe = regexp.MustCompile(`（([^）]+)）|\(([^)]+)\)`)
	rocMonthRe    = regexp.MustCompile(`^\d{2,3}-\d{2}$`)
	hanOnlyRe     = regexp.MustCompile(`^\p{Han}+$`)
	hanRe         = regexp.MustCompile(`\p{Han}`)
)

// isLeaveAnnouncement reports whether text is a posted monthly leave
// schedule such as "115年 元月 休假表".
func isLeaveAnnouncement(text string) bool {
	return strings.Contains(text, "年") && strings.Contains(text, "休假表")
}

// parseLeaveAnnouncement reads a leave schedule. The month comes from the
// header line and defaults to fallback. Station lines end in 站; every
// other line starting with a name and holding at least one m/d date is an
// entry. A person listed twice under one station has the dates merged.
func parseLeaveAnnouncement(text, fallback string) (string, []gasdb.LeaveEntry) {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	month := fallback
	for _, line := range lines {
		if !strings.Contains(line, "月") || !strings.Contains(line, "休假表") {
			continue
		}
		if m := leaveHeaderRe.FindStringSubmatch(line); m != nil {
			year, _ := strconv.Atoi(m[1])
			mon := 1
			if m[2] != "元" {
				mon, _ = strconv.Atoi(m[2])
			}
			if mon >= 1 && mon <= 12 {
				month = fmt.Sprintf("%d-%02d", year, mon)
			}
		}
		break
	}

	station := noStation
	var entries []gasdb.LeaveEntry
	index := make(map[string]int)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "休假表") {
			continue
		}
		if s := strings.TrimRight(line, "：:"); strings.HasSuffix(s, "站") {
			station = s
			continue
		}
		name := leaveNameRe.FindString(line)
		dates := leaveDateRe.FindAllString(line, -1)
		if name == "" || len(dates) == 0 {
			continue
		}
		key := station + "\x00" + name
		if i, ok := index[key]; ok {
			entries[i].Dates = append(entries[i].Dates, dates...)
			continue
		}
		index[key] = len(entries)
		entries = append(entries, gasdb.LeaveEntry{
			Month:   month,
			Name:    name,
			Station: station,
			Dates:   dates,
			Reason:  leaveReason(line),
		})
	}
	return month, entries
}

// leaveReason is the bracketed note on a schedule line, or else the first
// Han text following a date.
func leaveReason(line string) string {
	if m := leaveReasonRe.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	parts := leaveDateRe.Split(line, -1)
	for _, p := range parts[1:] {
		p = strings.Trim(p, " 、,")
		if p != "" && hanRe.MatchString(p) {
			return p
		}
	}
	return ""
}

// leave handles the leave schedule commands shared by the boss and staff
// groups: posting an announcement, 查詢 by date or name and the monthly
// summary.
func (b *Bot) leave(ctx context.Context, text string) (string, string, bool) {
	var cmd, query, month string
	switch {
	case isLeaveAnnouncement(text):
		cmd = "leave.announce"
	case strings.HasPrefix(text, "查詢"):
		query = strings.TrimSpace(strings.TrimPrefix(text, "查詢"))
		switch {
		case query == "":
			return replyLeaveDateHint, "leave.by_date", true
		case hanOnlyRe.MatchString(query):
			cmd = "leave.by_person"
		default:
			cmd = "leave.by_date"
		}
	case text == "休假總表" || text == "本月休假" || text == "休假表":
		cmd = "leave.summary"
	case strings.HasPrefix(text, "休假總表 "):
		month = strings.TrimSpace(strings.TrimPrefix(text, "休假總表"))
		if !rocMonthRe.MatchString(month) {
			return replyLeaveMonthHint, "leave.summary", true
		}
		cmd = "leave.summary"
	default:
		return "", "", false
	}
	if b.store == nil {
		return replyNoDatabase, cmd, true
	}
	if month == "" {
		month = gasdb.ROCMonth(b.now())
	}

	if cmd == "leave.announce" {
		posted, entries := parseLeaveAnnouncement(text, month)
		if len(entries) == 0 {
			return replyLeaveEmpty, cmd, true
		}
		n, err := b.store.SaveLeaveSchedule(ctx, posted, entries)
		if err != nil {
			b.log.Error("leave schedule save failed", "month", posted, "error", err)
			return replyFailed, cmd, true
		}
		return formatLeaveSaved(posted, n), cmd, true
	}

	date := ""
	if cmd == "leave.by_date" {
		// "查詢 115-01 1/15" names the month before the date.
		if f := strings.Fields(query); len(f) >= 2 && rocMonthRe.MatchString(f[0]) {
			month, date = f[0], f[1]
		} else {
			date = f[0]
		}
	}
	entries, err := b.store.LeaveSchedule(ctx, month)
	if err != nil {
		b.log.Error("leave schedule query failed", "command", cmd, "month", month, "error", err)
		return replyQueryFailed, cmd, true
	}
	switch cmd {
	case "leave.by_person":
		return formatLeaveByPerson(query, month, entries), cmd, true
	case "leave.by_date":
		return formatLeaveByDate(month, date, entries), cmd, true
	default:
		return formatLeaveSummary(month, entries), cmd, true
	}
}

func formatLeaveSaved(month string, n int) string {
	return fmt.Sprintf(`✅ 休假表已記錄

📅 月份：%s
👥 休假人數：%d 人

💡 可用指令：
• 查詢 1/15 - 查詢指定日期休假人員
• 查詢 阿銘 - 查詢某人休假日期
• 休假總表 - 查看整月休假`, month, n)
}

func formatLeaveByDate(month, date string, entries []gasdb.LeaveEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📅 %s 尚無休假記錄", month)
	}
	lines := []string{fmt.Sprintf("📅 %s %s 休假人員\n", month, date), rule}
	for _, e := range entries {
		if !slices.Contains(e.Dates, date) {
			continue
		}
		line := "👤 " + e.Name
		if e.Station != noStation {
			line += "（" + e.Station + "）"
		}
		if e.Reason != "" {
			line += " - " + e.Reason
		}
		lines = append(lines, line)
	}
	if len(lines) == 2 {
		return fmt.Sprintf("📅 %s %s 無人休假", month, date)
	}
	return strings.Join(lines, "\n")
}

// formatLeaveByPerson matches names either way round, so 阿銘 finds 小阿銘
// and 阿銘哥 finds 阿銘.
func formatLeaveByPerson(name, month string, entries []gasdb.LeaveEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📅 %s 尚無休假記錄", month)
	}
	lines := []string{fmt.Sprintf("👤 %s 的休假日期\n", name), rule}
	for _, e := range entries {
		if !strings.Contains(e.Name, name) && !strings.Contains(name, e.Name) {
			continue
		}
		line := "📅 日期：" + strings.Join(e.Dates, "、")
		if e.Station != noStation {
			line += "\n🏢 站別：" + e.Station
		}
		if e.Reason != "" {
			line += "\n📋 原因：" + e.Reason
		}
		lines = append(lines, line)
	}
	if len(lines) == 2 {
		return fmt.Sprintf("👤 %s 在 %s 無休假記錄", name, month)
	}
	return strings.Join(lines, "\n")
}

// formatLeaveSummary groups entries by station in the order they arrive.
func formatLeaveSummary(month string, entries []gasdb.LeaveEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📅 %s 尚無休假記錄", month)
	}
	lines := []string{fmt.Sprintf("📅 %s 休假總表\n", month), rule}
	station, days := "", 0
	for _, e := range entries {
		if e.Station != station {
			lines = append(lines, "\n🏢 "+e.Station)
			station = e.Station
		}
		line := fmt.Sprintf("  👤 %s：%s", e.Name, strings.Join(e.Dates, "、"))
		if e.Reason != "" {
			line += "（" + e.Reason + "）"
		}
		lines = append(lines, line)
		days += len(e.Dates)
	}
	lines = append(lines, fmt.Sprintf("\n📊 統計：%d 人，共 %d 天休假", len(entries), days))
	return strings.Join(lines, "\n")
}
