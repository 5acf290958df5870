package gdpull

// Version is set at build time with -ldflags "-X github.com/mashiike/gdpull.Version=..."
var Version = "current"
