package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/aigen"
	"github.com/questforge/questforge/internal/infra/metrics"
)

// QuestService manages quest sets per user and cadence.
// A cadence's current window is its latest set, as long as that set has not
// expired (and, for micro quests, is not fully completed). The first request
// in a new window generates the next set: from the AI text service when it
// answers with usable quests, otherwise from the catalog templates.
type QuestService struct {
	store   Store
	gen     domain.TextGenerator
	catalog *Catalog
	cfg     settings
	group   singleflight.Group
}

// NewQuestService creates a quest service. A nil generator means templates only.
func NewQuestService(store Store, gen domain.TextGenerator, catalog *Catalog, opts ...Option) *QuestService {
	if gen == nil {
		gen = aigen.Disabled{}
	}
	return &QuestService{store: store, gen: gen, catalog: catalog, cfg: newSettings(opts)}
}

// UserCadences lists the per-user cadences in display order.
var UserCadences = []domain.Cadence{
	domain.CadenceDaily, domain.CadenceWeekly, domain.CadenceMonthly,
	domain.CadenceMicro, domain.CadenceBeginner,
}

// GetOrCreate returns the user's quests for cadence in the current window,
// generating and storing a new set if the window has none.
// Beginner quests are empty once the user reaches BeginnerMaxLevel.
// Global quests are listed with the user's progress and never generated.
func (s *QuestService) GetOrCreate(ctx context.Context, cadence domain.Cadence, userID string) ([]domain.Quest, error) {
	now := s.cfg.clock()
	if cadence == domain.CadenceGlobal {
		return s.store.ListGlobalQuests(ctx, userID, now)
	}
	if _, err := domain.ParseCadence(string(cadence)); err != nil {
		return nil, err
	}

	rec, err := ensureRecord(ctx, s.store, userID, now)
	if err != nil {
		return nil, err
	}
	if cadence == domain.CadenceBeginner && rec.Level >= BeginnerMaxLevel {
		return []domain.Quest{}, nil
	}

	current, err := s.store.LatestQuestSet(ctx, userID, cadence)
	if err != nil {
		return nil, fmt.Errorf("load %s quests: %w", cadence, err)
	}
	if windowOpen(cadence, current, now) {
		return current, nil
	}

	key := userID + "/" + string(cadence)
	v, err, _ := s.group.Do(key, func() (any, error) {
		// Another caller may have filled the window while we waited.
		current, err := s.store.LatestQuestSet(ctx, userID, cadence)
		if err != nil {
			return nil, fmt.Errorf("load %s quests: %w", cadence, err)
		}
		if windowOpen(cadence, current, now) {
			return current, nil
		}
		return s.generate(ctx, cadence, rec, now)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Quest), nil
}

// All returns every cadence's current quests, generating where needed,
// plus the active global quests.
func (s *QuestService) All(ctx context.Context, userID string) (map[domain.Cadence][]domain.Quest, error) {
	out := make(map[domain.Cadence][]domain.Quest, len(UserCadences)+1)
	cadences := append(append([]domain.Cadence(nil), UserCadences...), domain.CadenceGlobal)
	for _, c := range cadences {
		qs, err := s.GetOrCreate(ctx, c, userID)
		if err != nil {
			return nil, err
		}
		out[c] = qs
	}
	return out, nil
}

// PublishGlobal stores an ownerless quest visible to every user.
// A nil expiresAt means the quest never expires.
func (s *QuestService) PublishGlobal(ctx context.Context, tmpl domain.QuestTemplate, expiresAt *time.Time) (domain.Quest, error) {
	t, ok := normalizeTemplate(tmpl)
	if !ok {
		return domain.Quest{}, fmt.Errorf("%w: global quest needs a title, a known type, and positive target and reward", domain.ErrInvalidInput)
	}
	now := s.cfg.clock()
	if expiresAt != nil && !expiresAt.After(now) {
		return domain.Quest{}, fmt.Errorf("%w: expiry must be in the future", domain.ErrInvalidInput)
	}
	q := instantiate(t, "", domain.CadenceGlobal, "", domain.SourceAuthored, expiresAt, now)
	if err := s.store.InsertGlobalQuest(ctx, q); err != nil {
		return domain.Quest{}, fmt.Errorf("insert global quest: %w", err)
	}
	log.Printf("[quests] published global quest %q (%s)", q.Title, q.ID)
	return q, nil
}

// generate builds and stores the next set for a cadence.
func (s *QuestService) generate(ctx context.Context, cadence domain.Cadence, rec domain.ProgressionRecord, now time.Time) ([]domain.Quest, error) {
	count := setSize(cadence)

	var consumeExam string
	if cadence == domain.CadenceDaily {
		pending, err := s.store.PendingExtraQuests(ctx, rec.UserID)
		if err != nil {
			return nil, fmt.Errorf("load exam penalty: %w", err)
		}
		if pending != nil {
			count += pending.ExtraDailyQuests
			consumeExam = pending.ID
		}
	}

	source := domain.SourceAI
	templates := s.fromAI(ctx, cadence, rec, count)
	if len(templates) == 0 {
		source = domain.SourceTemplate
		templates = s.fromCatalog(cadence, rec.Level, count)
	}

	expiresAt := expiryFor(cadence, now)
	batch := uuid.NewString()
	quests := make([]domain.Quest, 0, len(templates))
	for _, t := range templates {
		quests = append(quests, instantiate(t, rec.UserID, cadence, batch, source, expiresAt, now))
	}

	if err := s.store.InsertQuestSet(ctx, quests, consumeExam); err != nil {
		return nil, fmt.Errorf("store %s quests: %w", cadence, err)
	}
	metrics.QuestSetsGenerated.WithLabelValues(string(cadence), string(source)).Inc()
	log.Printf("[quests] generated %d %s quests for %s (source=%s)", len(quests), cadence, rec.UserID, source)
	return quests, nil
}

// fromAI asks the text service for count quests. Any failure returns nil.
func (s *QuestService) fromAI(ctx context.Context, cadence domain.Cadence, rec domain.ProgressionRecord, count int) []domain.QuestTemplate {
	if cadence == domain.CadenceBeginner {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.aiTimeout)
	defer cancel()

	text, err := s.gen.Generate(ctx, questPrompt(cadence, rec, count))
	if err != nil {
		if !errors.Is(err, domain.ErrGeneratorDisabled) {
			log.Printf("[quests] ai generation failed, using templates: %v", err)
		}
		return nil
	}
	parsed, err := aigen.ParseQuestArray(text)
	if err != nil {
		log.Printf("[quests] ai response unusable, using templates: %v", err)
		return nil
	}

	var out []domain.QuestTemplate
	for _, t := range parsed {
		if n, ok := normalizeTemplate(t); ok {
			out = append(out, n)
		}
		if len(out) == count {
			break
		}
	}
	if len(out) == 0 {
		log.Printf("[quests] ai returned no valid quests, using templates")
	}
	return out
}

// fromCatalog picks count templates. Weekly and monthly use the whole list;
// the other cadences shuffle first.
func (s *QuestService) fromCatalog(cadence domain.Cadence, level, count int) []domain.QuestTemplate {
	templates := s.catalog.Templates(cadence, level)
	switch cadence {
	case domain.CadenceWeekly, domain.CadenceMonthly:
		return templates
	}
	s.cfg.rng.Shuffle(len(templates), func(i, j int) {
		templates[i], templates[j] = templates[j], templates[i]
	})
	if count < len(templates) {
		templates = templates[:count]
	}
	return templates
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func setSize(cadence domain.Cadence) int {
	switch cadence {
	case domain.CadenceDaily:
		return DailyQuestCount
	case domain.CadenceWeekly:
		return WeeklyQuestCount
	case domain.CadenceMonthly:
		return MonthlyQuestCount
	case domain.CadenceMicro:
		return MicroQuestCount
	case domain.CadenceBeginner:
		return BeginnerQuestCount
	}
	return 0
}

// expiryFor returns the deadline of a set created at now, or nil for none.
func expiryFor(cadence domain.Cadence, now time.Time) *time.Time {
	var t time.Time
	switch cadence {
	case domain.CadenceDaily:
		t = startOfDay(now).Add(day)
	case domain.CadenceWeekly:
		t = now.Add(7 * day)
	case domain.CadenceMonthly:
		t = now.Add(30 * day)
	default:
		return nil
	}
	return &t
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// windowOpen reports whether set still serves as the cadence's current window.
func windowOpen(cadence domain.Cadence, set []domain.Quest, now time.Time) bool {
	if len(set) == 0 {
		return false
	}
	if set[0].IsExpired(now) {
		return false
	}
	if cadence == domain.CadenceMicro {
		for _, q := range set {
			if !q.Completed {
				return true
			}
		}
		return false
	}
	return true
}

// normalizeTemplate fills defaults and rejects descriptors that cannot be played.
func normalizeTemplate(t domain.QuestTemplate) (domain.QuestTemplate, bool) {
	t.Title = strings.TrimSpace(t.Title)
	t.Type = domain.QuestType(strings.ToLower(strings.TrimSpace(string(t.Type))))
	if t.Title == "" || t.Target <= 0 || t.XPReward <= 0 || !t.Type.Valid() {
		return t, false
	}
	switch t.Unit {
	case domain.UnitCount, domain.UnitMinutes:
	default:
		t.Unit = domain.UnitCount
		if t.Type == domain.QuestFocus {
			t.Unit = domain.UnitMinutes
		}
	}
	if t.Difficulty == "" {
		t.Difficulty = "medium"
	}
	if t.Category == "" {
		t.Category = "productivity"
	}
	return t, true
}

func instantiate(t domain.QuestTemplate, userID string, cadence domain.Cadence, batch string,
	source domain.QuestSource, expiresAt *time.Time, now time.Time) domain.Quest {
	return domain.Quest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Cadence:     cadence,
		Batch:       batch,
		Title:       t.Title,
		Description: t.Description,
		Type:        t.Type,
		Unit:        t.Unit,
		Difficulty:  t.Difficulty,
		Category:    t.Category,
		Target:      t.Target,
		XPReward:    t.XPReward,
		ExpiresAt:   expiresAt,
		Source:      source,
		CreatedAt:   now,
	}
}

// questPrompt builds the structured generation request for a cadence.
func questPrompt(cadence domain.Cadence, rec domain.ProgressionRecord, count int) domain.GenerateRequest {
	system := fmt.Sprintf(`You are a gamification expert designing productivity quests. Generate engaging, achievable quests that help users build good habits and earn XP.

Quest Types:
- daily: 3-5 quick daily tasks (30-50 XP each)
- weekly: 3-4 bigger weekly goals (100-300 XP each)
- monthly: 2-3 major monthly achievements (500-1000 XP each)
- micro: 5-10 quick wins (10-25 XP each, 5-15 min tasks)

User Context:
- Level: %d
- Current Streak: %d days
- Discipline Score: %d/100
- Completed Tasks: %d

Return ONLY valid JSON array of quests with this exact format:
[
  {
    "title": "Quest title (action-oriented, clear)",
    "description": "Brief description",
    "xpReward": number,
    "target": number (quantity to complete),
    "type": "tasks|focus|streak|skill|study|habit|challenge",
    "difficulty": "easy|medium|hard",
    "category": "productivity|learning|wellness|discipline"
  }
]

Make quests:
- Specific and measurable
- Varied (mix categories)
- Appropriate for user level
- Motivating and fun
- Progressive (harder as level increases)`,
		rec.Level, rec.CurrentStreak, rec.DisciplineScore, rec.TasksCompleted)

	return domain.GenerateRequest{
		System: system,
		Prompt: fmt.Sprintf("Generate %d %s quests for a level %d user.", count, cadence, rec.Level),
	}
}

// ensureRecord returns the user's record, creating the starting one on first use.
func ensureRecord(ctx context.Context, store Store, userID string, now time.Time) (domain.ProgressionRecord, error) {
	rec, err := store.GetProgression(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return rec, fmt.Errorf("load progression: %w", err)
	}
	rec, err = store.EnsureProgression(ctx, domain.NewProgressionRecord(userID, now))
	if err != nil {
		return rec, fmt.Errorf("create progression: %w", err)
	}
	return rec, nil
}
