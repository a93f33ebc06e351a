// Package config handles daemon configuration loading and management.
//
// Configuration is stored in ~/.policyd/policyd.json and names the
// on-disk policy store location, listen socket, and checkpoint behavior.
package config
