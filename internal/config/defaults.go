package config

const (
	defaultDataDir = "~/.local/share/apflow/data"
	defaultLogDir  = "~/.local/share/apflow/logs"
	defaultAPIBind = "127.0.0.1:7419"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultWorkerCount          = 2
	defaultQueuePollMS          = 1500
	defaultClaimRetryMS         = 800
	defaultErrorRetrySeconds    = 3
	defaultStaleTaskTimeoutSecs = 300
	defaultReapIntervalSeconds  = 60
	defaultShutdownGraceSeconds = 10

	defaultAmountTolerancePct = 0.5
	defaultPriceTolerancePct  = 5.0
	defaultQtyTolerancePct    = 0.0
	defaultMinCodingScore     = 0.4
	defaultAutoApproveLimit   = 50000.0

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds = 30

	defaultMaxRetrievalHits = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			WorkerCount:          defaultWorkerCount,
			QueuePollMS:          defaultQueuePollMS,
			ClaimRetryMS:         defaultClaimRetryMS,
			ErrorRetrySeconds:    defaultErrorRetrySeconds,
			StaleTaskTimeoutSecs: defaultStaleTaskTimeoutSecs,
			ReapIntervalSeconds:  defaultReapIntervalSeconds,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
		},
		Validation: Validation{
			AmountTolerancePct: defaultAmountTolerancePct,
		},
		POMatch: POMatch{
			PriceTolerancePct: defaultPriceTolerancePct,
			QtyTolerancePct:   defaultQtyTolerancePct,
		},
		Coding: Coding{
			MinConfidence: defaultMinCodingScore,
			CompanyCostCenters: map[string]string{
				"1000": "CC1000",
				"2000": "CC2000",
			},
		},
		Risk: Risk{
			AutoApproveLimit: defaultAutoApproveLimit,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Explain: Explain{
			Enabled:          true,
			MaxRetrievalHits: defaultMaxRetrievalHits,
		},
	}
}
