// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each struct type is parsed at most once per process and cached, so
// independent components can load their own configuration without
// coordinating startup order.
package config
