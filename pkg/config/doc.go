// Package config loads typed configuration structs from environment variables.
//
// A .env file in the working directory is read once on first use. Each struct
// type is parsed once and cached, so packages can call Load for their own
// Config type without coordinating with main.
package config
