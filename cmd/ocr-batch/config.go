// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/ocr-batch/internal/ledger"
	"github.com/pdiddy/ocr-batch/internal/logging"
	"github.com/pdiddy/ocr-batch/internal/secrets"
	"github.com/pdiddy/ocr-batch/pkg/types"
)

// Defaults match the container deployment: Ollama on the same host, documents
// mounted at /app/doc and text written to /app/doc_text.
const (
	defaultHost      = "localhost"
	defaultPort      = 11434
	defaultModel     = "scb10x/typhoon-ocr-7b:latest"
	defaultInputDir  = "/app/doc"
	defaultOutputDir = "/app/doc_text"
	defaultTimeout   = 10 * time.Minute
)

// legacyEnv maps config keys to the environment variables the container
// image has always used. The prefixed OCR_BATCH_* name is checked first.
var legacyEnv = map[string]string{
	"inference.host":        "OLLAMA_HOST",
	"inference.port":        "OLLAMA_PORT",
	"inference.model":       "MODEL_NAME",
	"conversion.input_dir":  "DOC_DIR",
	"conversion.output_dir": "DOC_TEXT_DIR",
}

// configure installs defaults and environment bindings on v.
func configure(v *viper.Viper) {
	v.SetDefault("inference.host", defaultHost)
	v.SetDefault("inference.port", defaultPort)
	v.SetDefault("inference.model", defaultModel)
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.timeout", defaultTimeout)
	v.SetDefault("inference.user_agent", "ocr-batch/"+version)
	v.SetDefault("conversion.input_dir", defaultInputDir)
	v.SetDefault("conversion.output_dir", defaultOutputDir)
	v.SetDefault("conversion.task_type", string(types.TaskDefault))
	v.SetDefault("conversion.workers", 1)
	v.SetDefault("conversion.extract_natural_text", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)
	v.SetDefault("ledger_path", "")

	v.SetEnvPrefix("OCR_BATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "OCR_BATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		v.BindEnv(key, prefixed, legacy)
	}
}

// resolveConfig builds the process configuration from v. Precedence is
// flag, environment, config file, default. The API key falls back to the
// inference-api-key secret. An empty ledger_path places the ledger under
// the output directory; disableLedger clears it.
func resolveConfig(v *viper.Viper, s map[string]string, disableLedger bool) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, err
	}

	task, err := types.ParseTaskType(string(cfg.Conversion.TaskType))
	if err != nil {
		return types.Config{}, err
	}
	cfg.Conversion.TaskType = task

	if cfg.Conversion.Workers < 1 {
		cfg.Conversion.Workers = 1
	}
	cfg.Inference.APIKey = secrets.Lookup(s, secrets.InferenceAPIKey, cfg.Inference.APIKey)

	switch {
	case disableLedger:
		cfg.LedgerPath = ""
	case cfg.LedgerPath == "":
		cfg.LedgerPath = ledger.DefaultPath(cfg.Conversion.OutputDir)
	}
	return cfg, nil
}
