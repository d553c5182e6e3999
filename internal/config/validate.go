package config

import "errors"

var (
	errInvalidChunking = errors.New("config: min_chunk_length must be positive and less than max_chunk_length")
	errInvalidZones    = errors.New("config: noise_threshold must be below safe_threshold")
)
