package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	"roombot/internal/infrastructure/transport"
)

// PrometheusCollector implements the dispatcher, cooldown and router
// observers on top of a Prometheus registry.
type PrometheusCollector struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	cooldownChecks   *prometheus.CounterVec
	roomEvents       *prometheus.CounterVec

	roomConnected  prometheus.Gauge
	roomUsers      prometheus.Gauge
	playlistLength prometheus.Gauge
	reconnects     prometheus.Counter
	prunedEntries  prometheus.Counter
	scheduledRuns  *prometheus.CounterVec
}

var (
	_ services.DispatchObserver = (*PrometheusCollector)(nil)
	_ services.CooldownObserver = (*PrometheusCollector)(nil)
	_ transport.EventObserver   = (*PrometheusCollector)(nil)
)

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_dispatch_total",
			Help: "Chat messages seen by the dispatcher, by command and outcome",
		}, []string{"command", "result"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roombot_dispatch_duration_seconds",
			Help:    "Time from trigger match to handler completion",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"result"}),

		cooldownChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_cooldown_checks_total",
			Help: "Cooldown admissions, by cooldown type and outcome",
		}, []string{"type", "outcome"}),

		roomEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_room_events_total",
			Help: "Inbound room frames, by type and whether they applied cleanly",
		}, []string{"type", "applied"}),

		roomConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roombot_room_connected",
			Help: "1 while the bot is logged into the room",
		}),

		roomUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roombot_room_users",
			Help: "Users currently in the room mirror",
		}),

		playlistLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roombot_playlist_length",
			Help: "Items currently in the playlist mirror",
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "roombot_room_disconnects_total",
			Help: "Room sessions that ended with a transport fault",
		}),

		prunedEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "roombot_cooldown_pruned_total",
			Help: "Expired cooldown records removed by the scheduler",
		}),

		scheduledRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_scheduled_runs_total",
			Help: "Scheduler job runs, by job and outcome",
		}, []string{"job", "outcome"}),
	}
}

func (p *PrometheusCollector) ObserveDispatch(command string, result services.DispatchResult, duration time.Duration) {
	// Unknown and non-command names come from chat; keep them out of labels.
	switch result {
	case services.ResultNotCommand:
		p.dispatchTotal.WithLabelValues("", result.String()).Inc()
		return
	case services.ResultUnknown:
		command = "unknown"
	}
	p.dispatchTotal.WithLabelValues(command, result.String()).Inc()
	p.dispatchDuration.WithLabelValues(result.String()).Observe(duration.Seconds())
}

func (p *PrometheusCollector) ObserveCooldown(typeID string, adm domain.Admission) {
	outcome := "admitted"
	switch {
	case adm.Bypassed:
		outcome = "bypassed"
	case !adm.Admitted:
		outcome = "throttled_" + string(adm.Scope)
	}
	p.cooldownChecks.WithLabelValues(typeID, outcome).Inc()
}

func (p *PrometheusCollector) ObserveRoomEvent(eventType string, applied bool) {
	p.roomEvents.WithLabelValues(eventType, strconv.FormatBool(applied)).Inc()
}

func (p *PrometheusCollector) SetConnected(connected bool) {
	if connected {
		p.roomConnected.Set(1)
		return
	}
	p.roomConnected.Set(0)
}

func (p *PrometheusCollector) RecordDisconnect() {
	p.reconnects.Inc()
}

// SetRoomSize publishes the mirror's current user and playlist counts.
func (p *PrometheusCollector) SetRoomSize(users, playlist int) {
	p.roomUsers.Set(float64(users))
	p.playlistLength.Set(float64(playlist))
}

func (p *PrometheusCollector) RecordPruned(n int) {
	p.prunedEntries.Add(float64(n))
}

func (p *PrometheusCollector) RecordScheduledRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.scheduledRuns.WithLabelValues(job, outcome).Inc()
}
