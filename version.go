package lyng

// Version is the library version reported by the CLI.
const Version = "0.8.1"
