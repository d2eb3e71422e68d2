package linebot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jiujiugas/gasops/internal/gasdb"
	"github.com/jiujiugas/gasops/internal/llm"
	"github.com/jiujiugas/gasops/internal/session"
)

// Messenger sends replies to LINE.
type Messenger interface {
	// Reply answers a reply token with one text message per text.
	Reply(ctx context.Context, replyToken string, texts ...string) error
	// DisplayName looks up a user's profile name.
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Chatter answers a conversation. *llm.Client implements it.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Store is the part of the database the bot queries. *gasdb.DB implements
// it.
type Store interface {
	ClockIn(ctx context.Context, userID, userName string, now time.Time) (gasdb.Attendance, bool, error)
	ClockOut(ctx context.Context, userID, userName string, now time.Time) (gasdb.Attendance, error)
	AttendanceSince(ctx context.Context, since time.Time) ([]gasdb.Attendance, error)
	TodayRevenue(ctx context.Context, now time.Time) (gasdb.Revenue, error)
	PendingOrders(ctx context.Context) ([]gasdb.Order, error)
	SearchCustomers(ctx context.Context, kw string, limit int) ([]gasdb.Customer, error)
	LowInventory(ctx context.Context) ([]gasdb.StockItem, error)
	SearchKnowledge(ctx context.Context, q string, limit int) ([]gasdb.KnowledgeEntry, error)
	SaveLeaveSchedule(ctx context.Context, month string, entries []gasdb.LeaveEntry) (int, error)
	LeaveSchedule(ctx context.Context, month string) ([]gasdb.LeaveEntry, error)
	CreateEmployeeRequest(ctx context.Context, r gasdb.EmployeeRequest) (gasdb.EmployeeRequest, error)
	EmployeeRequests(ctx context.Context, userID string, limit int) ([]gasdb.EmployeeRequest, error)
	LogMessage(ctx context.Context, m gasdb.MessageLog) error
	Ping(ctx context.Context) error
}

// Config wires a Bot. Messenger, LLM and Sessions are required.
type Config struct {
	Messenger Messenger
	LLM       Chatter
	Sessions  *session.Store
	// Store may be nil; database commands then reply that no database is
	// configured and nothing is logged.
	Store Store
	// TriggerWord must appear in messages from groups without a role.
	TriggerWord string
	// Roles maps group ids to roles.
	Roles map[string]Role
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Bot turns webhook events into replies.
type Bot struct {
	msg      Messenger
	llm      Chatter
	sessions *session.Store
	store    Store
	trigger  string
	roles    map[string]Role
	now      func() time.Time
	log      *slog.Logger
}

// New returns a Bot. It panics when a required dependency is missing.
func New(cfg Config) *Bot {
	switch {
	case cfg.Messenger == nil:
		panic("linebot: nil Messenger")
	case cfg.LLM == nil:
		panic("linebot: nil LLM")
	case cfg.Sessions == nil:
		panic("linebot: nil Sessions")
	}
	b := &Bot{
		msg:      cfg.Messenger,
		llm:      cfg.LLM,
		sessions: cfg.Sessions,
		store:    cfg.Store,
		trigger:  cfg.TriggerWord,
		roles:    cfg.Roles,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.log == nil {
		b.log = slog.Default().With("component", "linebot")
	}
	return b
}

// RoleOf returns the role of the chat src belongs to.
func (b *Bot) RoleOf(src Source) Role {
	if src.Kind == SourceGroup {
		if r, ok := b.roles[src.GroupID]; ok {
			return r
		}
	}
	return RoleCustomer
}

// Handle processes one event. Reply failures are logged, not returned.
func (b *Bot) Handle(ctx context.Context, ev Event) {
	log := b.log.With("event", ev.Kind, "source", ev.Source.Kind, "user", ev.Source.UserID)
	switch ev.Kind {
	case EventMessage:
		b.handleMessage(ctx, log, ev)
	case EventPostback:
		b.reply(ctx, log, ev, b.postback(ev))
	case EventFollow:
		log.Info("user followed")
		b.reply(ctx, log, ev, replyWelcome)
	case EventUnfollow:
		log.Info("user unfollowed")
		b.sessions.Clear(ev.Source.SessionKey())
	case EventJoin:
		log.Info("joined chat", "chat", ev.Source.ChatID())
		b.reply(ctx, log, ev, fmt.Sprintf(replyJoin, b.trigger))
	case EventLeave:
		log.Info("left chat", "chat", ev.Source.ChatID())
	default:
		log.Debug("event ignored")
	}
}

func (b *Bot) handleMessage(ctx context.Context, log *slog.Logger, ev Event) {
	switch ev.Message.Kind {
	case MessageText:
		b.handleText(ctx, log, ev)
	case MessageImage:
		b.reply(ctx, log, ev, replyImage)
	case MessageVideo:
		b.reply(ctx, log, ev, replyVideo)
	case MessageAudio:
		b.reply(ctx, log, ev, replyAudio)
	case MessageLocation:
		b.reply(ctx, log, ev, formatLocation(ev.Message))
	case MessageSticker:
		log.Debug("sticker ignored")
	}
}

// shouldReply applies the reply rule: 1:1 chats and groups with a role
// always, everything else only when the trigger word is present.
func (b *Bot) shouldReply(src Source, role Role, text string) bool {
	if src.Kind == SourceUser || role != RoleCustomer {
		return true
	}
	return b.trigger != "" && strings.Contains(text, b.trigger)
}

func (b *Bot) handleText(ctx context.Context, log *slog.Logger, ev Event) {
	role := b.RoleOf(ev.Source)
	text := strings.TrimSpace(ev.Message.Text)
	if !b.shouldReply(ev.Source, role, text) {
		return
	}
	if b.trigger != "" {
		text = strings.TrimSpace(strings.ReplaceAll(text, b.trigger, ""))
	}

	reply, intent := b.route(ctx, log, ev.Source, role, text)
	b.reply(ctx, log, ev, reply)
	b.logExchange(ctx, log, ev, text, reply, intent)
}

// route picks the reply for a text message and names the intent it
// matched.
func (b *Bot) route(ctx context.Context, log *slog.Logger, src Source, role Role, text string) (string, string) {
	switch text {
	case "/clear", "/清除", "/重置":
		b.sessions.Clear(src.SessionKey())
		return replyCleared, "clear"
	case "/help":
		return help(role), "help"
	case "":
		return replyGreeting, "greeting"
	}

	switch role {
	case RoleAttendance:
		if reply, intent, ok := b.attendance(ctx, src, text); ok {
			return reply, intent
		}
	case RoleBoss:
		if reply, intent, ok := b.boss(ctx, text); ok {
			return reply, intent
		}
	case RoleStaff:
		if reply, intent, ok := b.staff(ctx, src, text); ok {
			return reply, intent
		}
	}

	switch text {
	case "hi", "你好", "Hello":
		return replyGreeting, "greeting"
	case "價格", "價格表":
		return gasdb.PriceTable(), "price"
	case "訂購", "訂單":
		return replyOrdering, "ordering"
	}

	return b.ask(ctx, log, src.SessionKey(), role, text), "llm"
}

// attendance handles the clock commands. Record queries are matched
// before clock-in because 打卡紀錄 contains 打卡.
func (b *Bot) attendance(ctx context.Context, src Source, text string) (string, string, bool) {
	var cmd string
	switch {
	case containsAny(text, "今天紀錄", "查詢紀錄", "打卡紀錄"):
		cmd = "attendance.today"
	case strings.Contains(text, "本週紀錄"):
		cmd = "attendance.week"
	case strings.Contains(text, "下班"):
		cmd = "attendance.clock_out"
	case containsAny(text, "上班", "打卡"):
		cmd = "attendance.clock_in"
	default:
		return "", "", false
	}
	switch {
	case b.store == nil:
		return replyNoDatabase, cmd, true
	case src.UserID == "" && (cmd == "attendance.clock_in" || cmd == "attendance.clock_out"):
		return replyNoUser, cmd, true
	}

	now := b.now()
	var (
		reply string
		err   error
	)
	switch cmd {
	case "attendance.today":
		var recs []gasdb.Attendance
		if recs, err = b.store.AttendanceSince(ctx, now); err == nil {
			reply = formatToday(now, recs)
		}
	case "attendance.week":
		start := gasdb.WeekStart(now)
		var recs []gasdb.Attendance
		if recs, err = b.store.AttendanceSince(ctx, start); err == nil {
			reply = formatWeek(start, recs)
		}
	case "attendance.clock_out":
		var rec gasdb.Attendance
		if rec, err = b.store.ClockOut(ctx, src.UserID, b.displayName(ctx, src.UserID), now); err == nil {
			reply = formatClockOut(rec)
		}
	case "attendance.clock_in":
		var (
			rec     gasdb.Attendance
			updated bool
		)
		if rec, updated, err = b.store.ClockIn(ctx, src.UserID, b.displayName(ctx, src.UserID), now); err == nil {
			reply = formatClockIn(rec, updated)
		}
	}
	if err != nil {
		b.log.Error("attendance command failed", "command", cmd, "error", err)
		return replyFailed, cmd, true
	}
	return reply, cmd, true
}

// boss runs the boss group commands: the connection status, the business
// queries, then the leave schedule.
func (b *Bot) boss(ctx context.Context, text string) (string, string, bool) {
	if containsAny(text, "同步狀態", "連線狀態") {
		if b.store == nil {
			return replyNoDatabase, "boss.status", true
		}
		err := b.store.Ping(ctx)
		if err != nil {
			b.log.Warn("status ping failed", "error", err)
		}
		return formatStatus(err), "boss.status", true
	}
	if reply, intent, ok := b.business(ctx, text); ok {
		return reply, intent, true
	}
	return b.leave(ctx, text)
}

// business handles the boss group queries.
func (b *Bot) business(ctx context.Context, text string) (string, string, bool) {
	var cmd, kw string
	switch {
	case containsAny(text, "今日訂單", "今天訂單", "營收", "營業額"):
		cmd = "business.revenue"
	case strings.Contains(text, "待處理") || strings.Contains(strings.ToLower(text), "pending"):
		cmd = "business.pending"
	case strings.HasPrefix(text, "客戶 ") || text == "客戶":
		cmd = "business.customers"
		kw = strings.TrimSpace(strings.TrimPrefix(text, "客戶"))
		if kw == "" {
			return replyCustomerHint, cmd, true
		}
	case containsAny(text, "庫存", "存貨"):
		cmd = "business.stock"
	default:
		return "", "", false
	}
	if b.store == nil {
		return replyNoDatabase, cmd, true
	}

	var (
		reply string
		err   error
	)
	switch cmd {
	case "business.revenue":
		var rev gasdb.Revenue
		if rev, err = b.store.TodayRevenue(ctx, b.now()); err == nil {
			reply = formatRevenue(rev)
		}
	case "business.pending":
		var orders []gasdb.Order
		if orders, err = b.store.PendingOrders(ctx); err == nil {
			reply = formatPending(orders)
		}
	case "business.customers":
		var cs []gasdb.Customer
		if cs, err = b.store.SearchCustomers(ctx, kw, customersShown); err == nil {
			reply = formatCustomers(kw, cs)
		}
	case "business.stock":
		var items []gasdb.StockItem
		if items, err = b.store.LowInventory(ctx); err == nil {
			reply = formatStock(items)
		}
	}
	if err != nil {
		b.log.Error("business query failed", "command", cmd, "error", err)
		return replyQueryFailed, cmd, true
	}
	return reply, cmd, true
}

// ask sends text to the LLM with the history under key. The exchange joins
// the history only when the call succeeds.
func (b *Bot) ask(ctx context.Context, log *slog.Logger, key string, role Role, text string) string {
	history := b.sessions.History(key)
	answer, err := b.llm.Chat(ctx, llm.Conversation(SystemPrompt(role), history, text))
	if err != nil {
		log.Error("llm chat failed", "error", err)
		return replyFailed
	}
	b.sessions.Append(key,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	return answer
}

func (b *Bot) postback(ev Event) string {
	data := ev.PostbackData
	action, ok := strings.CutPrefix(data, "action:")
	if !ok {
		return "收到資料: " + data
	}
	switch action {
	case "clear_history":
		b.sessions.Clear(ev.Source.SessionKey())
		return replyCleared
	case "help":
		return help(b.RoleOf(ev.Source))
	default:
		return "收到動作: " + action
	}
}

func (b *Bot) displayName(ctx context.Context, userID string) string {
	name, err := b.msg.DisplayName(ctx, userID)
	if err != nil {
		b.log.Debug("profile lookup failed", "user", userID, "error", err)
		return ""
	}
	return name
}

func (b *Bot) reply(ctx context.Context, log *slog.Logger, ev Event, text string) {
	if ev.ReplyToken == "" || text == "" {
		return
	}
	if err := b.msg.Reply(ctx, ev.ReplyToken, text); err != nil {
		log.Error("reply failed", "error", err)
	}
}

func (b *Bot) logExchange(ctx context.Context, log *slog.Logger, ev Event, text, reply, intent string) {
	if b.store == nil {
		return
	}
	m := gasdb.MessageLog{
		UserID:   ev.Source.UserID,
		Type:     string(ev.Message.Kind),
		Content:  text,
		Response: reply,
		Intent:   intent,
	}
	if ev.Source.Kind != SourceUser {
		m.GroupID = ev.Source.ChatID()
	}
	if err := b.store.LogMessage(ctx, m); err != nil {
		log.Warn("message log failed", "error", err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
