package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eigerco/blocksim/internal/pipeline"
)

const namespace = "blocksim"

// Recorder exports pipeline outcomes as Prometheus metrics. It implements
// pipeline.Observer.
type Recorder struct {
	submissions   *prometheus.CounterVec
	deployments   *prometheus.CounterVec
	minedBlocks   prometheus.Counter
	anomalyScores prometheus.Histogram
	rewards       prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Log submissions by terminal status and rejection reason.",
		}, []string{"status", "reason"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firmware_deployments_total",
			Help:      "Per-device firmware deployment results by status.",
		}, []string{"status"}),
		minedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_mined_total",
			Help:      "Blocks mined by successful submissions.",
		}),
		anomalyScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "anomaly_score",
			Help:      "Anomaly scores of submissions that reached the anomaly gate.",
			Buckets:   prometheus.LinearBuckets(0, 0.05, 21),
		}),
		rewards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_paid_total",
			Help:      "Sum of rewards credited to wallets.",
		}),
	}

	for _, c := range []prometheus.Collector{r.submissions, r.deployments, r.minedBlocks, r.anomalyScores, r.rewards} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveSubmission(out pipeline.Outcome) {
	r.submissions.WithLabelValues(string(out.Status), string(out.Reason)).Inc()
	if out.AnomalyScore != nil {
		r.anomalyScores.Observe(*out.AnomalyScore)
	}
	if out.BlockHash != nil {
		r.minedBlocks.Inc()
	}
	if out.Reward != nil {
		r.rewards.Add(*out.Reward)
	}
}

func (r *Recorder) ObserveDeployment(res pipeline.DeploymentResult) {
	for _, dep := range res.Deployments {
		r.deployments.WithLabelValues(string(dep.Status)).Inc()
	}
}
