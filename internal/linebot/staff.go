package linebot

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

// requestsShown caps the requests 休假狀態 lists.
const requestsShown = 5

// knowledgeShown caps the articles one knowledge answer carries.
const knowledgeShown = 3

var (
	leaveRequestRes = []*regexp.Regexp{
		regexp.MustCompile(`^請(事假|病假|特休|公假|婚假|喪假)\s+(\d+)\s*天?\s*(.*)`),
		regexp.MustCompile(`^(事假|病假|特休|公假|婚假|喪假)申請\s+(\d+)\s*天?\s*(.*)`),
	}
	advanceRequestRe = regexp.MustCompile(`^(?:借支|借款)\s+(\d+)\s*元?\s*(.*)`)
)

// knowledgeKeywords are answered from the knowledge base when sent alone.
var knowledgeKeywords = []string{"安全", "瓦斯爐", "熱水器", "換桶", "緊急", "收費"}

// staff runs the staff group commands in order: the self-service
// commands, the leave schedule, leave and advance requests, then the
// knowledge base.
func (b *Bot) staff(ctx context.Context, src Source, text string) (string, string, bool) {
	switch text {
	case "功能", "菜單", "幫助", "help", "?", "功能表":
		return staffMenu, "staff.menu", true
	case "工作提醒", "提醒", "今日工作":
		return formatReminders(b.now()), "staff.reminders", true
	case "指南", "怎麼用", "使用說明":
		return staffGuide, "staff.guide", true
	case "我的紀錄":
		return b.myAttendance(ctx, src)
	}
	if reply, intent, ok := b.leave(ctx, text); ok {
		return reply, intent, true
	}
	if reply, intent, ok := b.request(ctx, src, text); ok {
		return reply, intent, true
	}
	return b.knowledge(ctx, text)
}

// myAttendance lists the sender's records for the current month.
func (b *Bot) myAttendance(ctx context.Context, src Source) (string, string, bool) {
	const cmd = "staff.mine"
	switch {
	case b.store == nil:
		return replyNoDatabase, cmd, true
	case src.UserID == "":
		return replyNoUser, cmd, true
	}
	now := b.now().In(gasdb.Taipei)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, gasdb.Taipei)
	recs, err := b.store.AttendanceSince(ctx, start)
	if err != nil {
		b.log.Error("attendance query failed", "command", cmd, "error", err)
		return replyQueryFailed, cmd, true
	}
	var mine []gasdb.Attendance
	for _, r := range recs {
		if r.UserID == src.UserID {
			mine = append(mine, r)
		}
	}
	return formatMine(start, mine), cmd, true
}

type leaveRequest struct {
	leaveType string
	days      int
	reason    string
}

// parseLeaveRequest reads "請事假 3天 因為家裡有事" or "事假申請 3天 ...".
func parseLeaveRequest(text string) (leaveRequest, bool) {
	for _, re := range leaveRequestRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		days, err := strconv.Atoi(m[2])
		if err != nil {
			return leaveRequest{}, false
		}
		return leaveRequest{leaveType: m[1], days: days, reason: requestReason(m[3])}, true
	}
	return leaveRequest{}, false
}

type advanceRequest struct {
	amount int
	reason string
}

// parseAdvanceRequest reads "借支 5000元 因為緊急用" or "借款 3000 ...".
func parseAdvanceRequest(text string) (advanceRequest, bool) {
	m := advanceRequestRe.FindStringSubmatch(text)
	if m == nil {
		return advanceRequest{}, false
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return advanceRequest{}, false
	}
	return advanceRequest{amount: amount, reason: requestReason(m[2])}, true
}

func requestReason(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return "未填寫原因"
}

// request files leave and advance requests and answers 休假狀態.
func (b *Bot) request(ctx context.Context, src Source, text string) (string, string, bool) {
	var (
		cmd string
		req gasdb.EmployeeRequest
	)
	if lr, ok := parseLeaveRequest(text); ok {
		cmd = "request.leave"
		req = gasdb.EmployeeRequest{Kind: gasdb.RequestLeave, LeaveType: lr.leaveType, Days: lr.days, Reason: lr.reason}
	} else if ar, ok := parseAdvanceRequest(text); ok {
		cmd = "request.advance"
		req = gasdb.EmployeeRequest{Kind: gasdb.RequestAdvance, Amount: ar.amount, Reason: ar.reason}
	} else if text == "休假狀態" || text == "申請狀態" {
		cmd = "request.status"
	} else {
		return "", "", false
	}
	switch {
	case b.store == nil:
		return replyNoDatabase, cmd, true
	case src.UserID == "":
		return replyNoUser, cmd, true
	case cmd != "request.status" && req.Days <= 0 && req.Amount <= 0:
		return replyBadRequest, cmd, true
	}

	if cmd == "request.status" {
		reqs, err := b.store.EmployeeRequests(ctx, src.UserID, requestsShown)
		if err != nil {
			b.log.Error("employee request query failed", "error", err)
			return replyQueryFailed, cmd, true
		}
		return formatRequests(reqs), cmd, true
	}

	req.UserID = src.UserID
	req.UserName = b.displayName(ctx, src.UserID)
	filed, err := b.store.CreateEmployeeRequest(ctx, req)
	if err != nil {
		b.log.Error("employee request failed", "command", cmd, "error", err)
		return replyFailed, cmd, true
	}
	b.log.Info("employee request filed", "kind", filed.Kind, "user", filed.UserID, "id", filed.ID)
	return formatRequestFiled(filed), cmd, true
}

// knowledge answers 知識教學, "教學 <關鍵字>", "知識 <關鍵字>" and the bare
// knowledgeKeywords. Without a database, or when its search fails, the
// built-in articles answer.
func (b *Bot) knowledge(ctx context.Context, text string) (string, string, bool) {
	const cmd = "knowledge"
	var kw string
	switch {
	case text == "知識教學" || text == "教學" || text == "知識":
		return knowledgeMenu, cmd, true
	case strings.HasPrefix(text, "教學 "):
		kw = strings.TrimSpace(strings.TrimPrefix(text, "教學"))
	case strings.HasPrefix(text, "知識 "):
		kw = strings.TrimSpace(strings.TrimPrefix(text, "知識"))
	case slices.Contains(knowledgeKeywords, text):
		kw = text
	default:
		return "", "", false
	}

	var entries []gasdb.KnowledgeEntry
	if b.store != nil {
		var err error
		if entries, err = b.store.SearchKnowledge(ctx, kw, knowledgeShown); err != nil {
			b.log.Warn("knowledge search failed, using built-in articles", "keyword", kw, "error", err)
			entries = gasdb.SearchBuiltin(kw, knowledgeShown)
		}
	} else {
		entries = gasdb.SearchBuiltin(kw, knowledgeShown)
	}
	return formatKnowledge(kw, entries), cmd, true
}

const staffMenu = `👋 員工功能菜單

請選擇功能：
1️⃣ 請假申請 - 事假、病假申請
2️⃣ 借支申請 - 薪資預借申請
3️⃣ 休假狀態 - 查看我的申請狀態
4️⃣ 工作提醒 - 今日工作事項提醒
5️⃣ 知識教學 - 瓦斯維修專業知識
6️⃣ AI 助理 - 瓦斯相關問題諮詢

💡 快速申請範例：
• 「請事假 3天 因為家裡有事」
• 「請病假 1天 發燒看醫生」
• 「借支 5000元 因為緊急用」

📚 知識教學關鍵字：
• 安全 - 瓦斯安全檢查
• 瓦斯爐 - 爐具故障排除
• 熱水器 - 熱水器維修
• 換桶 - 瓦斯桶更換
• 緊急 - 緊急狀況處理
• 收費 - 服務收費標準`

const staffGuide = `📘 員工使用指南

【請假申請】
📝 輸入「請事假 3天 原因」→ 等待主管審核

【查詢狀態】
📋 輸入「休假狀態」→ 查看申請進度

【打卡紀錄】
🕐 輸入「我的紀錄」→ 查看本月打卡

【工作提醒】
💡 輸入「工作提醒」→ 今日工作事項

【AI 諮詢】
🤖 直接詢問瓦斯相關問題

❓ 需要協助請聯繫管理員`

const knowledgeMenu = `📚 知識教學

輸入關鍵字查看教學：
• 安全 - 瓦斯安全檢查
• 瓦斯爐 - 爐具故障排除
• 熱水器 - 熱水器維修
• 換桶 - 瓦斯桶更換
• 緊急 - 緊急狀況處理
• 收費 - 服務收費標準

其他主題請輸入「教學 <關鍵字>」`

// formatReminders lists the daily reminders plus the Monday, Friday and
// start-of-month extras that apply to now.
func formatReminders(now time.Time) string {
	now = now.In(gasdb.Taipei)
	lines := []string{
		"📅 每日提醒",
		"• 上班打卡：記得準時打卡",
		"• 佩戴安全裝備：送瓦斯時注意安全",
		"• 客戶服務：保持友善態度",
	}
	switch now.Weekday() {
	case time.Monday:
		lines = append(lines, "\n📆 週一提醒", "• 參加週會", "• 檢查送貨車輛")
	case time.Friday:
		lines = append(lines, "\n📆 週五提醒", "• 整理本週訂單", "• 休假請提前申請")
	}
	if now.Day() <= 3 {
		lines = append(lines, "\n📆 月初提醒", "• 確認上月薪資", "• 檢查庫存")
	}
	return strings.Join(lines, "\n")
}

// shortID is the tail of a LINE user id, enough to tell staff apart.
func shortID(id string) string {
	if len(id) > 6 {
		return id[len(id)-6:]
	}
	return id
}

func formatRequestFiled(r gasdb.EmployeeRequest) string {
	if r.Kind == gasdb.RequestAdvance {
		return fmt.Sprintf(`💰 借支申請已提交

👤 員工 ID：%s
💵 金額：NT$ %s 元
📋 事由：%s

⏳ 狀態：等待主管審核

💡 注意：借支將從下月薪資扣除`, shortID(r.UserID), gasdb.Thousands(r.Amount), r.Reason)
	}
	return fmt.Sprintf(`📝 請假申請已提交

👤 員工 ID：%s
🏷️ 假別：%s
📅 天數：%d 天
📋 事由：%s

⏳ 狀態：等待主管審核

💡 輸入「休假狀態」查看審核進度`, shortID(r.UserID), r.LeaveType, r.Days, r.Reason)
}

var requestStatus = map[string]string{
	"pending":  "⏳ 等待審核",
	"approved": "✅ 已核准",
	"rejected": "❌ 未核准",
}

func formatRequests(reqs []gasdb.EmployeeRequest) string {
	if len(reqs) == 0 {
		return "📋 目前沒有您的申請紀錄"
	}
	lines := []string{"📋 我的申請紀錄\n", rule}
	for i, r := range reqs {
		what := fmt.Sprintf("%s %d 天", r.LeaveType, r.Days)
		if r.Kind == gasdb.RequestAdvance {
			what = "借支 NT$ " + gasdb.Thousands(r.Amount) + " 元"
		}
		status, ok := requestStatus[r.Status]
		if !ok {
			status = r.Status
		}
		lines = append(lines, fmt.Sprintf("\n%d. %s", i+1, what))
		lines = append(lines, "   📅 "+r.CreatedAt.In(gasdb.Taipei).Format("2006-01-02 15:04"))
		lines = append(lines, "   📋 "+r.Reason)
		lines = append(lines, "   "+status)
	}
	return strings.Join(lines, "\n")
}

func formatMine(start time.Time, recs []gasdb.Attendance) string {
	month := start.Format("2006-01")
	if len(recs) == 0 {
		return fmt.Sprintf("📋 本月 (%s) 尚無您的打卡紀錄", month)
	}
	lines := []string{fmt.Sprintf("📋 %s 本月打卡紀錄 (%s)\n", recs[0].DisplayName(), month), rule}
	var total float64
	for _, r := range recs {
		out := clockTime(r.ClockOut)
		if out == "" {
			out = "尚未下班"
		}
		lines = append(lines, fmt.Sprintf("\n📆 %s  🟢 %s → 🔴 %s", r.Date.Format(time.DateOnly), clockTime(r.ClockIn), out))
		if h, ok := r.Hours(); ok {
			total += h
		}
	}
	lines = append(lines, fmt.Sprintf("\n📊 共 %d 天，%s 小時", len(recs), hours(math.Round(total*100)/100)))
	return strings.Join(lines, "\n")
}

func formatKnowledge(kw string, entries []gasdb.KnowledgeEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📚 找不到「%s」的教學內容，可以直接問我瓦斯相關問題。", kw)
	}
	lines := []string{"📚 知識教學：" + kw, rule}
	for _, e := range entries {
		lines = append(lines, "\n【"+e.Title+"】", e.Content)
	}
	return strings.Join(lines, "\n")
}
