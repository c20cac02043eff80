package config

// hclFile mirrors Config for hclsimple. Every field is optional so that only
// the settings present in the file override the defaults.
type hclFile struct {
	Version  *string      `hcl:"version,optional"`
	Cadastre *hclCadastre `hcl:"cadastre,block"`
	Pricing  *hclPricing  `hcl:"pricing,block"`
	Run      *hclRun      `hcl:"run,block"`
	Logging  *hclLogging  `hcl:"logging,block"`
}

type hclCadastre struct {
	APIKey            *string `hcl:"api_key,optional"`
	BaseURL           *string `hcl:"base_url,optional"`
	CadastralAreaCode *int    `hcl:"cadastral_area_code,optional"`
	TimeoutSeconds    *int    `hcl:"timeout_seconds,optional"`
}

type hclPricing struct {
	CacheFile            *string  `hcl:"cache_file,optional"`
	MaxAgeHours          *int     `hcl:"max_age_hours,optional"`
	PageBaseURL          *string  `hcl:"page_base_url,optional"`
	TableURL             *string  `hcl:"table_url,optional"`
	RetryIntervalSeconds *int     `hcl:"retry_interval_seconds,optional"`
	TimeoutSeconds       *int     `hcl:"timeout_seconds,optional"`
	UserAgent            *string  `hcl:"user_agent,optional"`
	RefreshCommand       []string `hcl:"refresh_command,optional"`
}

type hclRun struct {
	Parcels         []string `hcl:"parcels,optional"`
	UseLocalCache   *bool    `hcl:"use_local_cache,optional"`
	ForceFreshCache *bool    `hcl:"force_fresh_cache,optional"`
	OnParcelFailure *string  `hcl:"on_parcel_failure,optional"`
	Format          *string  `hcl:"format,optional"`
	AssumeYes       *bool    `hcl:"assume_yes,optional"`
}

type hclLogging struct {
	Level       *string `hcl:"level,optional"`
	Format      *string `hcl:"format,optional"`
	Output      *string `hcl:"output,optional"`
	Development *bool   `hcl:"development,optional"`
}

func (f *hclFile) apply(cfg *Config) {
	setString(&cfg.Version, f.Version)

	if c := f.Cadastre; c != nil {
		setString(&cfg.Cadastre.APIKey, c.APIKey)
		setString(&cfg.Cadastre.BaseURL, c.BaseURL)
		setInt(&cfg.Cadastre.CadastralAreaCode, c.CadastralAreaCode)
		setInt(&cfg.Cadastre.TimeoutSeconds, c.TimeoutSeconds)
	}

	if p := f.Pricing; p != nil {
		setString(&cfg.Pricing.CacheFile, p.CacheFile)
		setInt(&cfg.Pricing.MaxAgeHours, p.MaxAgeHours)
		setString(&cfg.Pricing.PageBaseURL, p.PageBaseURL)
		setString(&cfg.Pricing.TableURL, p.TableURL)
		setInt(&cfg.Pricing.RetryIntervalSeconds, p.RetryIntervalSeconds)
		setInt(&cfg.Pricing.TimeoutSeconds, p.TimeoutSeconds)
		setString(&cfg.Pricing.UserAgent, p.UserAgent)
		if p.RefreshCommand != nil {
			cfg.Pricing.RefreshCommand = p.RefreshCommand
		}
	}

	if r := f.Run; r != nil {
		if r.Parcels != nil {
			cfg.Run.Parcels = r.Parcels
		}
		setBool(&cfg.Run.UseLocalCache, r.UseLocalCache)
		setBool(&cfg.Run.ForceFreshCache, r.ForceFreshCache)
		setString(&cfg.Run.OnParcelFailure, r.OnParcelFailure)
		setString(&cfg.Run.Format, r.Format)
		setBool(&cfg.Run.AssumeYes, r.AssumeYes)
	}

	if l := f.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setString(&cfg.Logging.Format, l.Format)
		setString(&cfg.Logging.Output, l.Output)
		setBool(&cfg.Logging.Development, l.Development)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
