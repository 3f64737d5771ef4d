// Command memories-dl rebuilds a Snapchat memories export into a dated
// photo and video library.
//
// Usage:
//
//	memories-dl run ~/Downloads/mydata -o ~/Pictures/memories
//	memories-dl run memories_history.json --dry-run
//	memories-dl plan ~/Downloads/mydata
//	memories-dl encoders
//	memories-dl config init
//
// Settings come from the config file (config init writes the defaults),
// then .env files and MEMORIES_* variables, then flags.
//
// Exit status is 0 when every action succeeded or was skipped, 1 when any
// action failed, 2 for usage and setup errors and 130 when interrupted.
package main
