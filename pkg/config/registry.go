package config

// Persistent state keys (Registry)
const (
	KeyLastCity            = "last_city"
	KeyMinImagesForDisplay = "min_images_for_display"
	KeyInitialRoutes       = "initial_routes"
	KeyMoreRoutes          = "more_routes"
)
