package pipeline

const (
	DefaultRewardAmount    = 0.3
	DefaultSlashPercentage = 0.10
	DefaultFlagThreshold   = 0.15
)

// SubmissionConfig holds the economic tunables of the anomaly gate.
type SubmissionConfig struct {
	RewardAmount    float64
	SlashPercentage float64
	// Scores strictly above FlagThreshold are flagged.
	FlagThreshold float64
}

func DefaultSubmissionConfig() SubmissionConfig {
	return SubmissionConfig{
		RewardAmount:    DefaultRewardAmount,
		SlashPercentage: DefaultSlashPercentage,
		FlagThreshold:   DefaultFlagThreshold,
	}
}
