package types

// Version is the stratum release version.
const Version = "0.4.0"
