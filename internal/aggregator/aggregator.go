package aggregator

import (
	"math"
	"os"
	"os/user"
	"sort"
	"strings"
	"time"

	"github.com/Ed2902/ColectorAW/internal/client"
	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/models"

	"go.uber.org/zap"
)

// bucket categories, matched by id substring
const (
	bucketAFK    = "aw-watcher-afk"
	bucketWindow = "aw-watcher-window"
	bucketWeb    = "aw-watcher-web"
	bucketInput  = "aw-watcher-input"
)

const noTitlePlaceholder = "(sin título)"

// Aggregator reduces one day of raw tracking events into a DailyReport
type Aggregator struct {
	client *client.Client
	cfg    config.ReportConfig
	logger *zap.Logger
}

// New creates a new aggregator
func New(c *client.Client, cfg config.ReportConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		client: c,
		cfg:    cfg,
		logger: logger,
	}
}

// BuildToday aggregates events from local midnight until now
func (a *Aggregator) BuildToday(extraMeta map[string]any) (*models.DailyReport, error) {
	now := time.Now()
	start := midnight(now)
	return a.build(start, now, extraMeta)
}

// BuildYesterday aggregates the full previous calendar day, from the
// previous local midnight to today's midnight. The window is never clipped
// to "now".
func (a *Aggregator) BuildYesterday(extraMeta map[string]any) (*models.DailyReport, error) {
	end := midnight(time.Now())
	start := end.AddDate(0, 0, -1)
	return a.build(start, end, extraMeta)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// accumulator keeps full-precision running totals for one aggregation pass.
// Rounding happens only at output to avoid compounding error across many
// small events.
type accumulator struct {
	activeSec float64
	afkSec    float64
	keys      float64
	mouseDist float64
	apps      *usageSet
	domains   *usageSet
}

// usageSet accumulates per-key durations plus a per-key weighted counter of
// sub-items (titles or URLs), preserving first-seen order for deterministic
// tie-breaking.
type usageSet struct {
	totals map[string]float64
	items  map[string]*weightedSet
	order  []string
}

type weightedSet struct {
	weights map[string]float64
	order   []string
}

func newUsageSet() *usageSet {
	return &usageSet{
		totals: make(map[string]float64),
		items:  make(map[string]*weightedSet),
	}
}

func (u *usageSet) add(key, item string, dur float64) {
	if _, seen := u.totals[key]; !seen {
		u.order = append(u.order, key)
		u.items[key] = &weightedSet{weights: make(map[string]float64)}
	}
	u.totals[key] += dur

	ws := u.items[key]
	if _, seen := ws.weights[item]; !seen {
		ws.order = append(ws.order, item)
	}
	ws.weights[item] += dur
}

// ranked returns the keys ordered by total duration descending. Ties keep
// first-seen order, so identical input always ranks identically.
func (u *usageSet) ranked() []string {
	keys := make([]string, len(u.order))
	copy(keys, u.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return u.totals[keys[i]] > u.totals[keys[j]]
	})
	return keys
}

// topItems returns the n most time-weighted sub-items of one key, heaviest
// first. n <= 0 returns all distinct items.
func (u *usageSet) topItems(key string, n int) []string {
	ws := u.items[key]
	items := make([]string, len(ws.order))
	copy(items, ws.order)
	sort.SliceStable(items, func(i, j int) bool {
		return ws.weights[items[i]] > ws.weights[items[j]]
	})
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func (a *Aggregator) build(start, end time.Time, extraMeta map[string]any) (*models.DailyReport, error) {
	bucketIDs, err := a.client.ListBuckets()
	if err != nil {
		return nil, err
	}

	acc := &accumulator{
		apps:    newUsageSet(),
		domains: newUsageSet(),
	}

	for _, id := range bucketIDs {
		var reduce func(*accumulator, []models.RawEvent)
		switch {
		case strings.Contains(id, bucketAFK):
			reduce = reduceAFK
		case strings.Contains(id, bucketWindow):
			reduce = reduceWindow
		case strings.Contains(id, bucketWeb):
			reduce = reduceWeb
		case strings.Contains(id, bucketInput):
			reduce = reduceInput
		default:
			continue
		}

		events, err := a.client.GetEvents(id, start, end)
		if err != nil {
			return nil, err
		}
		reduce(acc, events)

		a.logger.Debug("Reduced bucket",
			zap.String("bucket_id", id),
			zap.Int("event_count", len(events)),
		)
	}

	report := a.finalize(acc, start, end, extraMeta)

	a.logger.Info("Daily report built",
		zap.String("date", report.Date),
		zap.Float64("active_sec", report.Totals.ActiveSec),
		zap.Float64("afk_sec", report.Totals.AfkSec),
		zap.Int("app_count", len(report.Apps)),
		zap.Int("domain_count", len(report.Web)),
	)

	return report, nil
}

// reduceAFK splits durations into active vs away time by the event status
func reduceAFK(acc *accumulator, events []models.RawEvent) {
	for _, ev := range events {
		dur := float64(ev.Duration)
		status := strings.ToLower(ev.Data.String("status"))
		if status == "not-afk" {
			acc.activeSec += dur
		} else {
			acc.afkSec += dur
		}
	}
}

// reduceWindow accumulates per-application time and per-title weights
func reduceWindow(acc *accumulator, events []models.RawEvent) {
	for _, ev := range events {
		app := strings.ToLower(ev.Data.String("executable", "app"))
		if app == "" {
			app = "unknown"
		}
		title := strings.TrimSpace(ev.Data.String("title"))
		if title == "" {
			title = noTitlePlaceholder
		}
		acc.apps.add(app, title, float64(ev.Duration))
	}
}

// reduceWeb accumulates per-domain time and per-URL weights. Events with an
// empty URL are skipped entirely.
func reduceWeb(acc *accumulator, events []models.RawEvent) {
	for _, ev := range events {
		rawURL := strings.TrimSpace(ev.Data.String("url"))
		if rawURL == "" {
			continue
		}
		acc.domains.add(RegistrableDomain(rawURL), rawURL, float64(ev.Duration))
	}
}

// key-count and mouse-distance synonym keys, probed in priority order
var (
	keyFieldNames   = []string{"keys", "keycount", "keypresses", "keystrokes"}
	mouseFieldNames = []string{"mouse_distance", "mouse", "mouse_move_distance"}
)

// reduceInput accumulates keyboard and mouse counters
func reduceInput(acc *accumulator, events []models.RawEvent) {
	for _, ev := range events {
		if v, ok := ev.Data.Number(keyFieldNames...); ok {
			acc.keys += v
		}
		if v, ok := ev.Data.Number(mouseFieldNames...); ok {
			acc.mouseDist += v
		}
	}
}

func (a *Aggregator) finalize(acc *accumulator, start, end time.Time, extraMeta map[string]any) *models.DailyReport {
	apps := make([]models.AppUsage, 0, len(acc.apps.totals))
	for _, app := range acc.apps.ranked() {
		apps = append(apps, models.AppUsage{
			App:       app,
			TotalSec:  round2(acc.apps.totals[app]),
			TopTitles: acc.apps.topItems(app, a.cfg.TopTitlesLimit),
		})
	}

	web := make([]models.DomainUsage, 0, len(acc.domains.totals))
	for _, dom := range acc.domains.ranked() {
		web = append(web, models.DomainUsage{
			Domain:   dom,
			TotalSec: round2(acc.domains.totals[dom]),
			TopURLs:  acc.domains.topItems(dom, a.cfg.TopURLsLimit),
		})
	}

	meta := map[string]any{
		"version":      "v1",
		"source":       "activitywatch",
		"generated_at": time.Now().Format(time.RFC3339),
		"range_start":  start.Format(time.RFC3339),
		"range_end":    end.Format(time.RFC3339),
	}
	for k, v := range extraMeta {
		meta[k] = v
	}

	return &models.DailyReport{
		Date:     start.Format("2006-01-02"),
		Hostname: hostname(),
		User:     username(),
		Totals: models.Totals{
			ActiveSec: round2(acc.activeSec),
			AfkSec:    round2(acc.afkSec),
			Keys:      round2(acc.keys),
			MouseDist: round2(acc.mouseDist),
		},
		Apps: apps,
		Web:  web,
		Meta: meta,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
