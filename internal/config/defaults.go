package config

const (
	defaultLogDir          = "~/.local/share/dentarch/logs"
	defaultLogFormat       = ""
	defaultLogLevel        = "info"
	defaultCacheMode       = "distributed"
	defaultCacheMaxAgeDays = 30
	defaultSidecarName     = ".dentarch_cache.json"
	defaultCentralizedPath = "~/.local/share/dentarch/matches.db"
	defaultProjectSlug     = "maxillo"
	defaultUploadTimeout   = 300
	defaultRequestTimeout  = 30
	defaultRetryAttempts   = 2
	defaultConvertBinary   = "dcm2niix"
	defaultConvertTimeout  = 300
	defaultScanWorkers     = 4
	defaultGridSamples     = 20
)

// Default returns a Config populated with repository defaults. The pattern
// tables mirror the clinical naming conventions (English and Italian) the
// classifier was tuned against.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Patterns: Patterns{
			CBCTFolders: []string{"cbct", "cone.?beam", "3d", "dicom", "ct"},
			IOSFolders:  []string{"scansioni", "scan", "ios", "intraoral.*scan", "stl"},
			Upper: []string{
				"upper", "superiore", "sup", "mascella", "mascellare",
				"maxilla", "maxillary", "maxillari", "maxillar",
				"upperjaw", "upper.*jaw",
			},
			Lower: []string{
				"lower", "inferiore", "inf", "mandibola", "mandibolar",
				"mandible", "mandibular", "lowerjaw", "lower.*jaw",
			},
			Teleradiography:    []string{"tele", "laterale", "lateral", "cefalometria", "cephalometric"},
			Orthopantomography: []string{"orto", "ortho", "panoramic", "opt", "ortopantomografia"},
		},
		Classifier: Classifier{
			ImageExtensions: []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"},
			GridSamples:     defaultGridSamples,
		},
		Cache: Cache{
			Mode:            defaultCacheMode,
			MaxAgeDays:      defaultCacheMaxAgeDays,
			SidecarName:     defaultSidecarName,
			CentralizedPath: defaultCentralizedPath,
		},
		Archive: Archive{
			ProjectSlug:    defaultProjectSlug,
			UploadTimeout:  defaultUploadTimeout,
			RequestTimeout: defaultRequestTimeout,
			RetryAttempts:  defaultRetryAttempts,
		},
		Convert: Convert{
			Binary:  defaultConvertBinary,
			Timeout: defaultConvertTimeout,
		},
		Scan: Scan{
			Workers: defaultScanWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
