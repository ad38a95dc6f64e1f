package config

const (
	defaultStateDir               = "~/.local/share/stave"
	defaultLogDir                 = "~/.local/share/stave/logs"
	defaultCacheDir               = "~/.cache/stave"
	defaultVaultRoot              = "~/notes"
	defaultPlatform               = PlatformAuto
	defaultAPIBind                = "127.0.0.1:7491"
	defaultSocketName             = "stave.sock"
	defaultEngineBinary           = "verovio"
	defaultEngineTimeoutSeconds   = 30
	defaultFetchTimeoutSeconds    = 20
	defaultFetchUserAgent         = "stave/dev"
	defaultHighlightIntervalMS    = 50
	defaultLookaheadMS            = 33.5
	defaultSessionRetentionHours  = 24 * 7
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultRenderScale            = 100
	defaultRenderAdjustPageHeight = true
	defaultRenderAdjustPageWidth  = true
	defaultRenderBreaks           = "auto"
	defaultRenderPageWidth        = 700
	defaultRenderFont             = "Leland"
)

// Supported values for vault.platform.
const (
	PlatformAuto    = "auto"
	PlatformDesktop = "desktop"
	PlatformMobile  = "mobile"
)

var (
	validBreaks = []string{"none", "auto", "line", "smart", "encoded"}
	validFonts  = []string{"Leipzig", "Bravura", "Gootville", "Leland"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
			APIBind:  defaultAPIBind,
		},
		Vault: Vault{
			Root:     defaultVaultRoot,
			Platform: defaultPlatform,
		},
		Render: Render{
			Scale:            defaultRenderScale,
			AdjustPageHeight: defaultRenderAdjustPageHeight,
			AdjustPageWidth:  defaultRenderAdjustPageWidth,
			Breaks:           defaultRenderBreaks,
			PageWidth:        defaultRenderPageWidth,
			Font:             defaultRenderFont,
		},
		Engine: Engine{
			Binary:         defaultEngineBinary,
			TimeoutSeconds: defaultEngineTimeoutSeconds,
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultFetchTimeoutSeconds,
			UserAgent:      defaultFetchUserAgent,
		},
		Playback: Playback{
			HighlightIntervalMS: defaultHighlightIntervalMS,
			LookaheadMS:         defaultLookaheadMS,
		},
		Sessions: Sessions{
			RetentionHours: defaultSessionRetentionHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
