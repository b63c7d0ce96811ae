// Package config provides configuration management for attachment-downloader.
//
// Settings are read from a YAML file with spf13/viper. Every key can be
// overridden from the environment with the ATTACHMENTS_ prefix, dots
// replaced by underscores:
//
//	ATTACHMENTS_API_KEY=secret ATTACHMENTS_DOWNLOADS_MAX_CONCURRENT=8 attachment-dl ...
//
// # Loading
//
//	settings, err := config.Load("")             // ~/.config/attachment-downloader/config.yaml or ./config.yaml
//	settings, err := config.Load("/etc/att.yaml") // explicit file
//
// A missing file is not an error; DefaultSettings are used.
//
// # Saving
//
//	settings.Downloads.MaxConcurrent = 8
//	err := settings.Save(config.DefaultConfigPath())
//
// # Example file
//
//	api:
//	  base_url: https://api.zotero.org
//	  key: secret
//	  user_id: 12345
//	  timeout: 1m
//	  rate_limit: 0
//	downloads:
//	  path: ~/.local/share/attachment-downloader/storage
//	  max_concurrent: 4
//	  max_retries: 7
//	  retry_cooldown: 0.2
//	  retry_exponent: 4
//	store:
//	  path: ~/.local/share/attachment-downloader/attachments.db
//	logging:
//	  file: ~/.local/share/attachment-downloader/attachment-downloader.log
//	  level: INFO
package config
