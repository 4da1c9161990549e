package scripts

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/volunteerbot/core/cache"
	"github.com/m3rciful/volunteerbot/core/conversation"
	coredatabase "github.com/m3rciful/volunteerbot/core/database"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	"github.com/m3rciful/volunteerbot/volunteer/config"
	"github.com/m3rciful/volunteerbot/volunteer/render"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const (
	adminID   int64 = 1
	messageID       = 77
)

type outbound struct {
	ChatID int64
	Text   string
	KB     conversation.Keyboard
}

type recorder struct {
	mu      sync.Mutex
	sent    []outbound
	edited  []outbound
	deleted []int
}

func (r *recorder) Send(_ context.Context, chatID int64, text string, kb conversation.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, outbound{ChatID: chatID, Text: text, KB: kb})
	return nil
}

func (r *recorder) Edit(_ context.Context, chatID int64, _ int, text string, kb conversation.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edited = append(r.edited, outbound{ChatID: chatID, Text: text, KB: kb})
	return nil
}

func (r *recorder) Delete(_ context.Context, _ int64, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

// to returns the texts sent to chatID in order.
func (r *recorder) to(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *recorder) last(t *testing.T, chatID int64) outbound {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].ChatID == chatID {
			return r.sent[i]
		}
	}
	t.Fatalf("nothing sent to %d", chatID)
	return outbound{}
}

func (r *recorder) lastEdit(t *testing.T) outbound {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.edited)
	return r.edited[len(r.edited)-1]
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	core  *conversation.Core
	store *store.Store
	deps  *Deps
	out   *recorder
	names map[int64]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlx.Open(coredatabase.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	cfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: ":memory:"}
	require.NoError(t, coredatabase.RunMigrations(context.Background(), cfg, db, store.Migrations(cfg.Driver)))

	lru, err := cache.NewLRU(64)
	require.NoError(t, err)
	views, err := render.New(0)
	require.NoError(t, err)

	deps := &Deps{
		Store:  store.New(db, lru),
		Render: views,
		Cache:  lru,
		Settings: Settings{
			Admins:        []int64{adminID},
			Rewards:       config.RewardsConfig{Small: 1, Medium: 3, Big: 5},
			BroadcastPage: 2,
			Now:           func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) },
		},
	}
	core := conversation.New(conversation.NewMemoryStore(), Fallbacks(deps)...)
	Provide(core, deps)
	require.NoError(t, Install(core))
	core.BuildStageIndex()

	return &harness{
		t:     t,
		ctx:   context.Background(),
		core:  core,
		store: deps.Store,
		deps:  deps,
		out:   &recorder{},
		names: map[int64]string{adminID: "root"},
	}
}

func (h *harness) origin(uid int64) conversation.Origin {
	name, ok := h.names[uid]
	if !ok {
		name = "user" + strconv.FormatInt(uid, 10)
	}
	return conversation.Origin{UserID: uid, ChatID: uid, Username: name, Out: h.out}
}

func (h *harness) command(uid int64, cmd string) {
	h.t.Helper()
	require.NoError(h.t, h.core.HandleCommand(h.ctx, &conversation.CommandEvent{
		Origin: h.origin(uid), Command: cmd, Raw: "/" + cmd,
	}))
}

func (h *harness) say(uid int64, text string) {
	h.t.Helper()
	require.NoError(h.t, h.core.HandleMessage(h.ctx, &conversation.MessageEvent{
		Origin: h.origin(uid), MessageID: 1, Text: text,
	}))
}

func (h *harness) press(uid int64, payload string) {
	h.t.Helper()
	require.NoError(h.t, h.core.HandleCallback(h.ctx, &conversation.CallbackEvent{
		Origin: h.origin(uid), MessageID: messageID, Payload: payload,
	}))
}

func (h *harness) stage(uid int64) string {
	return h.core.Session(h.ctx, uid).Stage
}

func (h *harness) view(name string, data any) string {
	h.t.Helper()
	text, err := h.deps.Render.Render(name, data)
	require.NoError(h.t, err)
	return text
}

func (h *harness) volunteer(uid int64) store.Volunteer {
	h.t.Helper()
	v, err := h.store.Volunteers.ByTelegramID(h.ctx, uid)
	require.NoError(h.t, err)
	return v
}

// member registers uid through /start and seats it in org with role.
func (h *harness) member(uid int64, name string, org store.Organization, role store.Role) store.Volunteer {
	h.t.Helper()
	h.names[uid] = name
	h.command(uid, "start")
	v := h.volunteer(uid)
	require.NoError(h.t, h.store.Volunteers.SetOrganization(h.ctx, v.ID, org.ID))
	require.NoError(h.t, h.store.Volunteers.SetRole(h.ctx, v.ID, role))
	return h.volunteer(uid)
}

func (h *harness) organization(name string) store.Organization {
	h.t.Helper()
	org, err := h.store.Organizations.Create(h.ctx, name)
	require.NoError(h.t, err)
	return org
}

func TestResolveDepsReportsMissingComponents(t *testing.T) {
	c := conversation.New(nil)
	_, err := ResolveDeps(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ComponentStore)
	assert.Contains(t, err.Error(), ComponentRender)
	assert.Contains(t, err.Error(), ComponentSettings)
	assert.Error(t, Install(c))

	c.RegisterComponent(ComponentRender, "not a renderer")
	_, err = ResolveDeps(c)
	assert.ErrorContains(t, err, "want Renderer, got string")
}

func TestEnsureVolunteerPromotesPredefinedAdmins(t *testing.T) {
	h := newHarness(t)
	h.command(adminID, "help")
	h.command(5, "help")

	assert.Equal(t, store.RoleAdmin, h.volunteer(adminID).Role)
	assert.Equal(t, h.view("help_admin", nil), h.out.last(t, adminID).Text)
	assert.Equal(t, store.RoleNone, h.volunteer(5).Role)
	assert.Equal(t, h.view("help_guest", nil), h.out.last(t, 5).Text)
}

func TestRegisterFlow(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	const uid = 10

	h.command(uid, "register")
	assert.Equal(t, "register_1", h.stage(uid))
	assert.Equal(t, h.view("enter_full_name", nil), h.out.last(t, uid).Text)

	h.say(uid, "  Alice   Smith ")
	assert.Equal(t, "register_2", h.stage(uid))

	h.say(uid, "31.02.1990")
	assert.Equal(t, "register_2", h.stage(uid))
	assert.Equal(t, h.view("invalid_birthday", nil), h.out.last(t, uid).Text)

	h.say(uid, "2030-01-01")
	assert.Equal(t, "register_2", h.stage(uid), "future birthdays are rejected")

	h.say(uid, "1990-01-01")
	assert.Equal(t, "register_3", h.stage(uid))
	assert.Contains(t, h.out.last(t, uid).Text, "ID:"+strconv.FormatInt(org.ID, 10)+" Shelter")

	h.say(uid, "999")
	assert.Equal(t, "register_3", h.stage(uid))
	assert.Equal(t, h.view("invalid_organization", nil), h.out.last(t, uid).Text)

	h.say(uid, strconv.FormatInt(org.ID, 10))
	assert.Empty(t, h.stage(uid))

	v := h.volunteer(uid)
	assert.Equal(t, "Alice Smith", v.FullName)
	assert.True(t, v.IsAdult)
	claim, err := h.store.Claims.ByVolunteer(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, claim.OrganizationID)
	assert.Equal(t, h.view("claim_created", claim), h.out.last(t, uid).Text)

	h.command(uid, "register")
	assert.Empty(t, h.stage(uid))
	assert.Equal(t, h.view("claim_exists", nil), h.out.last(t, uid).Text)
}

func TestRegisterWithoutOpenOrganizationsAborts(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Closed")
	require.NoError(t, h.store.Organizations.SetClosed(h.ctx, org.ID, true))

	h.command(10, "register")
	h.say(10, "Bob")
	h.say(10, "01.01.2012")
	assert.Empty(t, h.stage(10))
	assert.Equal(t, h.view("no_open_organizations", nil), h.out.last(t, 10).Text)
	assert.False(t, h.volunteer(10).IsAdult)
}

func TestCancelAndFreeText(t *testing.T) {
	h := newHarness(t)
	h.command(10, "register")
	require.Equal(t, "register_1", h.stage(10))

	h.command(10, conversation.DefaultCancelCommand)
	assert.Empty(t, h.stage(10))
	assert.Equal(t, h.view("cancelled", nil), h.out.last(t, 10).Text)

	h.say(10, "hello")
	assert.Equal(t, h.view("no_script", nil), h.out.last(t, 10).Text)
	h.say(10, "https://example.com/post")
	assert.Equal(t, h.view("no_script", nil), h.out.last(t, 10).Text, "guests cannot report")
}

func TestAdminCommandsDenyOthers(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{"create_org", "set_curator", "organizations", "reports"} {
		h.command(20, cmd)
		assert.Empty(t, h.stage(20), cmd)
		assert.Equal(t, h.view("no_access", nil), h.out.last(t, 20).Text, cmd)
	}
}

func TestCreateOrganizationAndSeatCurator(t *testing.T) {
	h := newHarness(t)
	h.names[30] = "bob"
	h.command(30, "start")

	h.command(adminID, "create_org")
	assert.Equal(t, "create_org_1", h.stage(adminID))
	h.say(adminID, "Shelter")
	assert.Empty(t, h.stage(adminID))

	orgs, err := h.store.Organizations.All(h.ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, h.view("org_created", orgs[0]), h.out.last(t, adminID).Text)

	h.command(adminID, "create_org")
	h.say(adminID, "Shelter")
	assert.Equal(t, "create_org_1", h.stage(adminID))
	assert.Equal(t, h.view("org_exists", nil), h.out.last(t, adminID).Text)
	h.command(adminID, conversation.DefaultCancelCommand)

	h.command(adminID, "set_curator")
	h.say(adminID, "@nobody")
	assert.Equal(t, "set_curator_1", h.stage(adminID))

	h.say(adminID, "@bob")
	assert.Equal(t, "set_curator_2", h.stage(adminID))
	assert.Equal(t, "@bob", h.core.Session(h.ctx, adminID).LastMessage)

	h.say(adminID, strconv.FormatInt(orgs[0].ID, 10))
	assert.Empty(t, h.stage(adminID))

	bob := h.volunteer(30)
	assert.Equal(t, store.RoleCurator, bob.Role)
	require.NotNil(t, bob.OrganizationID)
	assert.Equal(t, orgs[0].ID, *bob.OrganizationID)
	assert.Equal(t, h.view("curator_notice", map[string]any{"Organization": "Shelter"}), h.out.last(t, 30).Text)
	assert.Contains(t, h.out.last(t, adminID).Text, "@bob")
}

func TestClaimAcceptedByCurator(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	h.member(40, "carol", org, store.RoleCurator)
	h.command(50, "start")
	dave := h.volunteer(50)
	claim, err := h.store.Claims.Create(h.ctx, dave.ID, org.ID)
	require.NoError(t, err)

	h.command(40, "claims")
	preview := h.out.last(t, 40)
	require.Len(t, preview.KB, 1)
	accept := callbacks.Data(actionAcceptClaim, claim.ID)
	assert.Equal(t, accept, preview.KB[0][0].Data)
	assert.Equal(t, callbacks.Data(actionRejectClaim, claim.ID), preview.KB[0][1].Data)

	h.press(60, accept)
	_, err = h.store.Claims.ByID(h.ctx, claim.ID)
	require.NoError(t, err, "a stranger cannot decide")

	h.press(40, accept)
	assert.Equal(t, h.view("claim_processed", map[string]any{"ID": claim.ID, "Accepted": true}), h.out.lastEdit(t).Text)
	assert.Equal(t, h.view("claim_accepted_notice", map[string]any{"Organization": "Shelter"}), h.out.last(t, 50).Text)

	dave = h.volunteer(50)
	assert.Equal(t, store.RoleVolunteer, dave.Role)
	require.NotNil(t, dave.OrganizationID)
	assert.Equal(t, org.ID, *dave.OrganizationID)

	h.press(40, accept)
	assert.Equal(t, []int{messageID}, h.out.deleted)

	h.command(40, "claims")
	assert.Equal(t, h.view("no_claims", nil), h.out.last(t, 40).Text)
}

func TestUnknownCallbackIsDismissed(t *testing.T) {
	h := newHarness(t)
	h.press(5, "unknown=1")
	assert.Equal(t, []int{messageID}, h.out.deleted)
}

func TestReportsConfirmCreditsWitnesses(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	h.member(11, "ann", org, store.RoleVolunteer)
	h.member(12, "ben", org, store.RoleVolunteer)
	h.command(adminID, "start")

	const link = "https://example.com/post/1"
	h.say(11, link)
	assert.Equal(t, h.view("report_created", nil), h.out.last(t, 11).Text)
	h.say(11, link)
	assert.Equal(t, h.view("link_already_registered", nil), h.out.last(t, 11).Text)
	h.say(12, link)
	h.say(12, "not a link")
	assert.Equal(t, h.view("link_required", nil), h.out.last(t, 12).Text)

	h.command(adminID, "reports")
	preview := h.out.last(t, adminID)
	assert.Contains(t, preview.Text, "[🔥: 2] "+link)
	require.Len(t, preview.KB, 2)
	require.Len(t, preview.KB[0], 3)

	hash := store.HashPayload(link)
	big := callbacks.Data(actionConfirmReport+"_big", hash)
	assert.Equal(t, big, preview.KB[0][2].Data)

	h.press(11, big)
	assert.Zero(t, h.volunteer(11).Balance, "only admins decide")

	h.press(adminID, big)
	assert.Equal(t, h.view("report_resolved", map[string]any{"Hash": hash, "Confirmed": true}), h.out.lastEdit(t).Text)
	for _, uid := range []int64{11, 12} {
		assert.EqualValues(t, 5, h.volunteer(uid).Balance)
		assert.Equal(t, h.view("report_confirmed_notice", map[string]any{"Payload": link, "Reward": int64(5), "Balance": int64(5)}),
			h.out.last(t, uid).Text)
	}

	h.press(adminID, big)
	assert.EqualValues(t, 5, h.volunteer(11).Balance, "a decided link is not credited twice")

	h.command(adminID, "reports")
	assert.Equal(t, h.view("no_reports", nil), h.out.last(t, adminID).Text)
}

func TestRewardBySize(t *testing.T) {
	b := &bot{Deps: &Deps{Settings: Settings{Rewards: config.RewardsConfig{Small: 1, Medium: 3, Big: 5}}}}
	for action, want := range map[string]int64{
		"confirm_report_small":  1,
		"confirm_report_medium": 3,
		"confirm_report_big":    5,
	} {
		got, err := b.reward(action)
		require.NoError(t, err)
		assert.Equal(t, want, got, action)
	}
	_, err := b.reward("confirm_report_huge")
	assert.Error(t, err)
	_, err = b.reward("reject_report")
	assert.Error(t, err)
}

func TestLockdownToggle(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	h.member(40, "carol", org, store.RoleCurator)

	h.command(40, "lockdown")
	info := h.out.last(t, 40)
	assert.Equal(t, h.view("org_info", org), info.Text)
	enable := callbacks.Data(actionEnableLockdown, org.ID)
	require.Len(t, info.KB, 1)
	assert.Equal(t, enable, info.KB[0][0].Data)

	h.press(40, enable)
	closed, err := h.store.Organizations.ByID(h.ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	edit := h.out.lastEdit(t)
	assert.Equal(t, h.view("org_info", closed), edit.Text)
	assert.Equal(t, callbacks.Data(actionDisableLockdown, org.ID), edit.KB[0][0].Data)

	open, err := h.store.Organizations.Unlocked(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	h.command(adminID, "lockdown")
	assert.Equal(t, "lockdown_1", h.stage(adminID))
	h.say(adminID, "abc")
	assert.Equal(t, "lockdown_1", h.stage(adminID))
	h.say(adminID, strconv.FormatInt(org.ID, 10))
	assert.Empty(t, h.stage(adminID))
	assert.Equal(t, callbacks.Data(actionDisableLockdown, org.ID), h.out.last(t, adminID).KB[0][0].Data)

	h.command(50, "lockdown")
	assert.Equal(t, h.view("no_access", nil), h.out.last(t, 50).Text)
}

func TestProfileTeamAndLeaderboard(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	ann := h.member(11, "ann", org, store.RoleVolunteer)
	h.command(adminID, "start")

	for link, ok := range map[string]bool{"https://a.example": true, "https://b.example": false} {
		_, err := h.store.Reports.Create(h.ctx, ann.ID, link)
		require.NoError(t, err)
		_, err = h.store.Reports.Resolve(h.ctx, store.HashPayload(link), ok, 1)
		require.NoError(t, err)
	}

	h.command(11, "profile")
	profile := h.out.last(t, 11).Text
	assert.Contains(t, profile, "🥉 ")
	assert.Contains(t, profile, "Organization: Shelter")
	assert.Contains(t, profile, "Balance: 1")
	assert.Contains(t, profile, "Accuracy: 50%")

	h.command(11, "team")
	team := h.out.last(t, 11).Text
	assert.Contains(t, team, `Team "Shelter"`)
	assert.Contains(t, team, "Confirmed: 1")

	h.command(11, "leaderboard")
	assert.Contains(t, h.out.last(t, 11).Text, `"Shelter" (50%)`)

	h.command(adminID, "profile")
	assert.Equal(t, h.view("role_not_supported", nil), h.out.last(t, adminID).Text)
	h.command(20, "team")
	assert.Equal(t, h.view("no_organization", nil), h.out.last(t, 20).Text)
	h.command(20, "leaderboard")
	assert.Equal(t, h.view("no_access", nil), h.out.last(t, 20).Text)
}

func TestRankOf(t *testing.T) {
	cases := map[int]string{100: "🏅", 99: "🥇", 80: "🥇", 79: "🥈", 60: "🥈", 59: "🥉", 30: "🥉", 29: "💔", 0: "💔"}
	for accuracy, want := range cases {
		assert.Equal(t, want, rankOf(accuracy), accuracy)
	}
}

func TestSortedMetricsKeepsInput(t *testing.T) {
	in := []store.OrgMetrics{{Name: "a", Reports: 1}, {Name: "b", Reports: 3}, {Name: "c", Reports: 2}}
	out := sortedMetrics(in, func(a, b store.OrgMetrics) bool { return a.Reports > b.Reports })
	assert.Equal(t, []string{"b", "c", "a"}, []string{out[0].Name, out[1].Name, out[2].Name})
	assert.Equal(t, "a", in[0].Name)
}

func TestFeedbackReachesAdmins(t *testing.T) {
	h := newHarness(t)
	org := h.organization("Shelter")
	h.command(adminID, "start")
	h.member(11, "ann", org, store.RoleVolunteer)

	h.command(20, "feedback")
	assert.Equal(t, h.view("no_access", nil), h.out.last(t, 20).Text)
	assert.Empty(t, h.stage(20))

	h.command(11, "feedback")
	assert.Equal(t, "feedback_1", h.stage(11))
	h.say(11, "   ")
	assert.Equal(t, "feedback_1", h.stage(11))
	h.say(11, "the shelter needs blankets")
	assert.Empty(t, h.stage(11))

	assert.Equal(t, h.view("feedback_message", map[string]any{"Username": "ann", "Message": "the shelter needs blankets"}),
		h.out.last(t, adminID).Text)
	assert.Equal(t, h.view("feedback_sent", nil), h.out.last(t, 11).Text)
}

func TestBroadcastReachesOwnOrganization(t *testing.T) {
	h := newHarness(t)
	shelter := h.organization("Shelter")
	kitchen := h.organization("Kitchen")
	h.member(40, "carol", shelter, store.RoleCurator)
	for _, uid := range []int64{11, 12, 13} {
		h.member(uid, "member"+strconv.FormatInt(uid, 10), shelter, store.RoleVolunteer)
	}
	h.member(14, "other", kitchen, store.RoleVolunteer)
	h.command(15, "start")

	h.command(11, "broadcast")
	assert.Equal(t, h.view("no_access", nil), h.out.last(t, 11).Text)

	h.command(40, "broadcast")
	assert.Equal(t, "broadcast_1", h.stage(40))
	h.say(40, "meeting at noon")
	assert.Empty(t, h.stage(40))

	want := h.view("broadcast_message", map[string]any{"Message": "meeting at noon", "Author": "carol", "Role": store.RoleCurator})
	for _, uid := range []int64{11, 12, 13} {
		assert.Equal(t, want, h.out.last(t, uid).Text)
	}
	assert.NotContains(t, h.out.to(14), want)
	assert.NotContains(t, h.out.to(15), want)
	assert.Equal(t, h.view("broadcast_done", map[string]any{"Count": 3}), h.out.last(t, 40).Text)
}

func TestIsWebLink(t *testing.T) {
	for s, want := range map[string]bool{
		"https://example.com/post/1": true,
		"http://t.me/channel/5":      true,
		"ftp://example.com":          false,
		"example.com":                false,
		"https://":                   false,
		"see https://example.com":    false,
		"":                           false,
	} {
		assert.Equal(t, want, isWebLink(s), s)
	}
}
