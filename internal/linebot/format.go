package linebot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

// Fixed replies.
const (
	replyCleared      = "🔄 對話歷史已清除"
	replyFailed       = "⚠️ 處理失敗，請稍後再試。"
	replyGreeting     = "你好！我是九九瓦斯行的客服機器人。請問有什麼可以為您服務的嗎？"
	replyWelcome      = "歡迎加入九九瓦斯行！我們是您可信賴的瓦斯供應商，隨時為您提供優質服務。\n輸入 /help 查看可用指令。"
	replyJoin         = "👋 大家好！我是九九瓦斯行助理。\n在訊息中提到「%s」就可以問我問題，輸入 /help 查看可用指令。"
	replyImage        = "📷 已收到您的圖片，我們會盡快查看。"
	replyVideo        = "🎬 已收到您的影片，我們會盡快查看。"
	replyAudio        = "🎤 已收到您的語音訊息，目前請改用文字描述需求。"
	replyNoPending    = "目前沒有待處理的訂單"
	replyStockOK      = "庫存充足，沒有低庫存產品"
	replyQueryFailed  = "⚠️ 查詢失敗，請稍後再試。"
	replyNoCustomer   = "找不到客戶：%s"
	replyCustomerHint = "請輸入：客戶 <關鍵字>"
	replyNoDatabase   = "⚠️ 尚未設定資料庫，無法查詢。"
	replyNoUser       = "⚠️ 無法取得您的 LINE 帳號，請先將機器人加為好友。"
	replyBadRequest   = "⚠️ 天數或金額必須大於 0"

	replyLeaveDateHint  = "❌ 請提供日期，例如：查詢 1/15"
	replyLeaveMonthHint = "❌ 月份格式為民國年-月，例如：休假總表 115-01"
	replyLeaveEmpty     = "⚠️ 休假表中沒有找到休假人員，格式範例：阿銘1/9、1/16"
)

const replyOrdering = `📋 訂購方式：

📞 電話訂購：
• 美崙站 (03) 831-5888
• 吉安站 (03) 833-1999
💬 LINE 訂購：直接留言地址、規格與桶數

⏰ 配送時間：各站點營業時間內均可安排`

const helpText = `📖 九九瓦斯行助理

💬 一般指令
• 價格 / 價格表：瓦斯價格
• 訂購：訂購方式
• /clear：清除對話歷史
• /help：顯示此說明

其他問題直接輸入即可，我會盡力回答。`

const helpAttendance = `

🕘 打卡指令
• 上班 / 打卡：上班打卡
• 下班：下班打卡
• 今天紀錄：今日打卡紀錄
• 本週紀錄：本週打卡紀錄`

const helpBoss = `

📊 店務指令
• 今日訂單 / 營收：今日營收
• 待處理：待處理訂單
• 客戶 <關鍵字>：搜尋客戶
• 庫存：低庫存警報`

const helpStatus = `
• 同步狀態：資料庫連線狀態`

const helpLeave = `

🗓️ 休假表指令
• 貼上「115年 元月 休假表」公告：記錄休假表
• 查詢 1/15：指定日期休假人員
• 查詢 <姓名>：某人休假日期
• 休假總表：本月休假總表`

const helpStaff = `

👷 員工指令
• 功能：員工功能菜單
• 工作提醒：今日工作事項
• 請事假 3天 <事由>：請假申請
• 借支 5000元 <事由>：借支申請
• 休假狀態：我的申請紀錄
• 我的紀錄：本月打卡紀錄
• 知識教學：瓦斯維修教學`

// pendingShown caps the orders listed in one reply.
const pendingShown = 10

// customersShown caps the customers listed in one reply.
const customersShown = 5

const rule = "========================================"

func help(r Role) string {
	switch r {
	case RoleAttendance:
		return helpText + helpAttendance
	case RoleBoss:
		return helpText + helpBoss + helpStatus + helpLeave
	case RoleStaff:
		return helpText + helpStaff + helpLeave
	default:
		return helpText
	}
}

func clockTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(gasdb.Taipei).Format("15:04")
}

func hours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func formatAttendance(a gasdb.Attendance) string {
	in, out := clockTime(a.ClockIn), clockTime(a.ClockOut)
	if in == "" {
		in = "未打卡"
	}
	if out == "" {
		out = "未打卡"
	}
	worked := "未下班"
	if h, ok := a.Hours(); ok {
		worked = hours(h) + " 小時"
	}
	return fmt.Sprintf("📅 %s\n👤 %s\n🟢 上班：%s\n🔴 下班：%s\n⏱️ 工時：%s",
		a.Date.Format(time.DateOnly), a.DisplayName(), in, out, worked)
}

func formatClockIn(a gasdb.Attendance, updated bool) string {
	if updated {
		return "✅ 更新上班打卡成功！\n\n" + formatAttendance(a)
	}
	return "✅ 上班打卡成功！\n\n" + formatAttendance(a)
}

func formatClockOut(a gasdb.Attendance) string {
	if a.ClockIn.IsZero() {
		return "⚠️ 今天尚未上班打卡\n\n" + formatAttendance(a)
	}
	return "✅ 下班打卡成功！\n\n" + formatAttendance(a)
}

// formatToday lists the records of day, which AttendanceSince returned
// for today.
func formatToday(day time.Time, recs []gasdb.Attendance) string {
	date := day.In(gasdb.Taipei).Format(time.DateOnly)
	if len(recs) == 0 {
		return fmt.Sprintf("📅 %s\n\n今天還沒有人打卡", date)
	}
	lines := []string{fmt.Sprintf("📅 %s 打卡紀錄\n", date), rule}
	for i, r := range recs {
		lines = append(lines, fmt.Sprintf("\n%d. %s", i+1, r.DisplayName()))
		lines = append(lines, "   🟢 上班："+clockTime(r.ClockIn))
		if h, ok := r.Hours(); ok {
			lines = append(lines, "   🔴 下班："+clockTime(r.ClockOut))
			lines = append(lines, "   ⏱️ 工時："+hours(h)+" 小時")
		} else {
			lines = append(lines, "   🔴 下班：尚未打卡")
		}
	}
	return strings.Join(lines, "\n")
}

// formatWeek groups recs by date, newest first as AttendanceSince returns
// them.
func formatWeek(start time.Time, recs []gasdb.Attendance) string {
	from := start.In(gasdb.Taipei).Format(time.DateOnly)
	if len(recs) == 0 {
		return fmt.Sprintf("📅 本週 (%s 起) 無打卡記錄", from)
	}
	lines := []string{fmt.Sprintf("📅 本週打卡紀錄 (%s 起)\n", from), rule}
	last := ""
	for _, r := range recs {
		if d := r.Date.Format(time.DateOnly); d != last {
			lines = append(lines, "\n📆 "+d)
			last = d
		}
		out := clockTime(r.ClockOut)
		if out == "" {
			out = "尚未下班"
		}
		lines = append(lines, "   👤 "+r.DisplayName())
		lines = append(lines, fmt.Sprintf("   🟢 %s → 🔴 %s", clockTime(r.ClockIn), out))
		if h, ok := r.Hours(); ok {
			lines = append(lines, "   ⏱️ "+hours(h)+" 小時")
		}
	}
	return strings.Join(lines, "\n")
}

// formatStatus reports the database connection to the boss group. err
// is the ping result.
func formatStatus(err error) string {
	lines := []string{"主系統連線狀態", rule}
	if err != nil {
		lines = append(lines, "\n狀態：未連線", "\n無法連接資料庫，請檢查網路或聯繫管理員")
		return strings.Join(lines, "\n")
	}
	lines = append(lines, "\n狀態：已連線", "\n可使用功能：",
		"• 今日訂單查詢",
		"• 待處理訂單",
		"• 客戶搜尋",
		"• 庫存警訊",
		"• 營收統計",
		"• 休假表",
	)
	return strings.Join(lines, "\n")
}

func formatRevenue(rev gasdb.Revenue) string {
	lines := []string{"今日營收報表", rule}
	lines = append(lines, "\n日期："+rev.Date.In(gasdb.Taipei).Format(time.DateOnly))
	lines = append(lines, fmt.Sprintf("訂單數：%d 筆", rev.Orders))
	lines = append(lines, fmt.Sprintf("待處理：%d 筆", rev.Pending))
	lines = append(lines, fmt.Sprintf("已完成：%d 筆", rev.Completed))
	lines = append(lines, "\n總營收：$"+money(rev.Amount))
	return strings.Join(lines, "\n")
}

func formatPending(orders []gasdb.Order) string {
	if len(orders) == 0 {
		return replyNoPending
	}
	lines := []string{fmt.Sprintf("待處理訂單（%d 筆）\n", len(orders)), rule}
	for i, o := range orders[:min(len(orders), pendingShown)] {
		customer := o.Customer
		if customer == "" {
			customer = "未知客戶"
		}
		lines = append(lines, fmt.Sprintf("\n%d. %s", i+1, o.No))
		lines = append(lines, "   客戶："+customer)
		lines = append(lines, "   金額：$"+money(o.Amount))
		lines = append(lines, "   狀態："+o.Status)
	}
	if n := len(orders) - pendingShown; n > 0 {
		lines = append(lines, fmt.Sprintf("\n... 還有 %d 筆訂單", n))
	}
	return strings.Join(lines, "\n")
}

func formatCustomers(kw string, cs []gasdb.Customer) string {
	if len(cs) == 0 {
		return fmt.Sprintf(replyNoCustomer, kw)
	}
	lines := []string{fmt.Sprintf("找到 %d 筆客戶資料\n", len(cs)), rule}
	for i, c := range cs[:min(len(cs), customersShown)] {
		lines = append(lines, fmt.Sprintf("\n%d. %s", i+1, c.Name))
		lines = append(lines, "   電話："+orNA(c.Phone))
		lines = append(lines, "   地址："+orNA(c.Address))
		lines = append(lines, "   類型："+orNA(c.PaymentType))
	}
	return strings.Join(lines, "\n")
}

func formatStock(items []gasdb.StockItem) string {
	if len(items) == 0 {
		return replyStockOK
	}
	lines := []string{fmt.Sprintf("低庫存警報（%d 筆）\n", len(items)), rule}
	for _, s := range items {
		lines = append(lines, "\n• "+s.Product)
		lines = append(lines, fmt.Sprintf("  目前庫存：%d", s.Quantity))
		lines = append(lines, fmt.Sprintf("  最低庫存：%d", s.MinStock))
	}
	return strings.Join(lines, "\n")
}

func formatLocation(m Message) string {
	return fmt.Sprintf("📍 收到位置資訊\n標題：%s\n地址：%s\n座標：%.6f, %.6f",
		orNA(m.Title), orNA(m.Address), m.Latitude, m.Longitude)
}

// money renders a whole-dollar amount with thousands separators.
func money(v float64) string {
	return gasdb.Thousands(int(math.Round(v)))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
