package linebot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

func TestParseLeaveRequest(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text   string
		want   leaveRequest
		wantOK bool
	}{
		"with reason":      {text: "請事假 3天 因為家裡有事", want: leaveRequest{"事假", 3, "因為家裡有事"}, wantOK: true},
		"without reason":   {text: "請病假 1天", want: leaveRequest{"病假", 1, "未填寫原因"}, wantOK: true},
		"application form": {text: "特休申請 2 天 出國", want: leaveRequest{"特休", 2, "出國"}, wantOK: true},
		"no day unit":      {text: "請喪假 5 奔喪", want: leaveRequest{"喪假", 5, "奔喪"}, wantOK: true},
		"missing space":    {text: "請事假3天"},
		"unknown type":     {text: "請產假 3天"},
		"not at start":     {text: "我想請事假 3天"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseLeaveRequest(tc.text)
			if ok != tc.wantOK {
				t.Fatalf("parseLeaveRequest(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(leaveRequest{})); diff != "" {
				t.Errorf("parseLeaveRequest(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestParseAdvanceRequest(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text   string
		want   advanceRequest
		wantOK bool
	}{
		"advance":       {text: "借支 5000元 因為緊急用", want: advanceRequest{5000, "因為緊急用"}, wantOK: true},
		"loan":          {text: "借款 3000 家裡急用", want: advanceRequest{3000, "家裡急用"}, wantOK: true},
		"no reason":     {text: "借支 800", want: advanceRequest{800, "未填寫原因"}, wantOK: true},
		"missing space": {text: "借支5000"},
		"overflow":      {text: "借支 99999999999999999999"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseAdvanceRequest(tc.text)
			if ok != tc.wantOK {
				t.Fatalf("parseAdvanceRequest(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(advanceRequest{})); diff != "" {
				t.Errorf("parseAdvanceRequest(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestFormatReminders(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		now         time.Time
		wantMonday  bool
		wantFriday  bool
		wantMonthly bool
	}{
		"plain wednesday":   {now: testNow},
		"monday":            {now: time.Date(2026, 3, 9, 8, 0, 0, 0, gasdb.Taipei), wantMonday: true},
		"friday":            {now: time.Date(2026, 3, 13, 8, 0, 0, 0, gasdb.Taipei), wantFriday: true},
		"start of month":    {now: time.Date(2026, 4, 1, 8, 0, 0, 0, gasdb.Taipei), wantMonthly: true},
		"monday on the 1st": {now: time.Date(2026, 6, 1, 8, 0, 0, 0, gasdb.Taipei), wantMonday: true, wantMonthly: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := formatReminders(tc.now)
			if !strings.HasPrefix(got, "📅 每日提醒\n• 上班打卡：記得準時打卡") {
				t.Errorf("formatReminders() = %q, want the daily reminders first", got)
			}
			for section, want := range map[string]bool{
				"📆 週一提醒": tc.wantMonday,
				"📆 週五提醒": tc.wantFriday,
				"📆 月初提醒": tc.wantMonthly,
			} {
				if strings.Contains(got, section) != want {
					t.Errorf("formatReminders() has %s = %v, want %v", section, !want, want)
				}
			}
		})
	}
}

func TestHandle_StaffCommands(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text  string
		setup func(*fakeStore)
		want  []string
	}{
		"menu":            {text: "功能", want: []string{"👋 員工功能菜單", "3️⃣ 休假狀態"}},
		"menu in english": {text: "help", want: []string{"👋 員工功能菜單"}},
		"reminders":       {text: "工作提醒", want: []string{"📅 每日提醒"}},
		"guide":           {text: "怎麼用", want: []string{"📘 員工使用指南"}},
		"leave request": {
			text: "請事假 3天 因為家裡有事",
			want: []string{"📝 請假申請已提交", "👤 員工 ID：567890", "🏷️ 假別：事假", "📅 天數：3 天", "📋 事由：因為家裡有事"},
		},
		"leave application": {text: "病假申請 1天", want: []string{"🏷️ 假別：病假", "📋 事由：未填寫原因"}},
		"advance": {
			text: "借支 5000元 因為緊急用",
			want: []string{"💰 借支申請已提交", "💵 金額：NT$ 5,000 元", "💡 注意：借支將從下月薪資扣除"},
		},
		"zero days": {text: "請事假 0天", want: []string{replyBadRequest}},
		"status": {
			text: "休假狀態",
			setup: func(s *fakeStore) {
				s.requests = []gasdb.EmployeeRequest{
					{Kind: gasdb.RequestAdvance, Amount: 3000, Reason: "急用", Status: "approved", CreatedAt: testNow},
					{Kind: gasdb.RequestLeave, LeaveType: "事假", Days: 3, Reason: "家裡有事", Status: gasdb.StatusPending, CreatedAt: testNow},
				}
			},
			want: []string{"1. 借支 NT$ 3,000 元", "✅ 已核准", "2. 事假 3 天", "📅 2026-03-04 09:00", "⏳ 等待審核"},
		},
		"status empty":   {text: "申請狀態", want: []string{"📋 目前沒有您的申請紀錄"}},
		"knowledge menu": {text: "知識教學", want: []string{"📚 知識教學\n\n輸入關鍵字查看教學"}},
		"knowledge keyword": {
			text: "換桶",
			setup: func(s *fakeStore) {
				s.knowledge = []gasdb.KnowledgeEntry{{Title: "瓦斯桶更換步驟", Content: "關閉舊桶開關"}}
			},
			want: []string{"📚 知識教學：換桶", "【瓦斯桶更換步驟】\n關閉舊桶開關"},
		},
		"knowledge miss": {text: "教學 火箭", want: []string{"找不到「火箭」的教學內容"}},
		"knowledge search fails": {
			text:  "知識 緊急",
			setup: func(s *fakeStore) { s.searchErr = errBoom },
			want:  []string{"【瓦斯外洩緊急處理】"},
		},
		"leave schedule": {text: "休假表", want: []string{"📅 115-03 尚無休假記錄"}},
		"my records": {
			text: "我的紀錄",
			setup: func(s *fakeStore) {
				s.attendance = []gasdb.Attendance{
					{UserID: "U1234567890", UserName: "阿明", Date: testNow, ClockIn: testNow, ClockOut: testNow.Add(8 * time.Hour)},
					{UserID: "U2", UserName: "阿華", Date: testNow, ClockIn: testNow},
				}
			},
			want: []string{"📋 阿明 本月打卡紀錄 (2026-03)", "🟢 09:00 → 🔴 17:00", "📊 共 1 天，8 小時"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tb := newTestBot(t, true)
			if tc.setup != nil {
				tc.setup(tb.store)
			}
			tb.Handle(context.Background(), textEvent(staffSrc, tc.text))

			got := tb.msg.last()
			for _, want := range tc.want {
				if !strings.Contains(got, want) {
					t.Errorf("reply = %q, want it to contain %q", got, want)
				}
			}
			if len(tb.llm.calls) != 0 {
				t.Errorf("llm calls = %d, want 0", len(tb.llm.calls))
			}
		})
	}
}

func TestHandle_StaffRequestFiled(t *testing.T) {
	t.Parallel()

	tb := newTestBot(t, true)
	tb.msg.names["U1234567890"] = "阿明"
	ctx := context.Background()
	tb.Handle(ctx, textEvent(staffSrc, "請事假 3天 因為家裡有事"))
	tb.Handle(ctx, textEvent(staffSrc, "借款 3000"))

	want := []gasdb.EmployeeRequest{
		{
			ID: "R1", UserID: "U1234567890", UserName: "阿明", Kind: gasdb.RequestLeave,
			LeaveType: "事假", Days: 3, Reason: "因為家裡有事", Status: gasdb.StatusPending, CreatedAt: testNow,
		},
		{
			ID: "R2", UserID: "U1234567890", UserName: "阿明", Kind: gasdb.RequestAdvance,
			Amount: 3000, Reason: "未填寫原因", Status: gasdb.StatusPending, CreatedAt: testNow,
		},
	}
	if diff := cmp.Diff(want, tb.store.filed); diff != "" {
		t.Errorf("filed requests mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_StaffErrors(t *testing.T) {
	t.Parallel()

	noUser := Source{Kind: SourceGroup, GroupID: "Gstaff"}
	tests := map[string]struct {
		src       Source
		text      string
		withStore bool
		storeErr  error
		want      string
	}{
		"request without user": {src: noUser, text: "請事假 3天", withStore: true, want: replyNoUser},
		"records without user": {src: noUser, text: "我的紀錄", withStore: true, want: replyNoUser},
		"request fails":        {src: staffSrc, text: "借支 500", withStore: true, storeErr: errBoom, want: replyFailed},
		"status fails":         {src: staffSrc, text: "休假狀態", withStore: true, storeErr: errBoom, want: replyQueryFailed},
		"records fail":         {src: staffSrc, text: "我的紀錄", withStore: true, storeErr: errBoom, want: replyQueryFailed},
		"request no database":  {src: staffSrc, text: "請事假 3天", want: replyNoDatabase},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tb := newTestBot(t, tc.withStore)
			if tc.withStore {
				tb.store.err = tc.storeErr
			}
			tb.Handle(context.Background(), textEvent(tc.src, tc.text))
			if got := tb.msg.last(); got != tc.want {
				t.Errorf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandle_StaffKnowledgeWithoutDatabase(t *testing.T) {
	t.Parallel()

	tb := newTestBot(t, false)
	tb.Handle(context.Background(), textEvent(staffSrc, "安全"))
	if got := tb.msg.last(); !strings.Contains(got, "【瓦斯安全使用注意事項】") {
		t.Errorf("reply = %q, want the built-in safety article", got)
	}
}

func TestHandle_BossStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text      string
		withStore bool
		pingErr   error
		want      string
	}{
		"connected":    {text: "同步狀態", withStore: true, want: "\n狀態：已連線"},
		"disconnected": {text: "連線狀態?", withStore: true, pingErr: errBoom, want: "\n狀態：未連線"},
		"no database":  {text: "同步狀態", want: replyNoDatabase},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tb := newTestBot(t, tc.withStore)
			if tc.withStore {
				tb.store.pingErr = tc.pingErr
			}
			tb.Handle(context.Background(), textEvent(bossSrc, tc.text))

			got := tb.msg.last()
			if !strings.Contains(got, tc.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tc.want)
			}
			if strings.Contains(got, errBoom.Error()) {
				t.Errorf("reply %q leaks the ping error", got)
			}
		})
	}
}
