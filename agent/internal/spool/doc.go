// Package spool tails a directory of JSON-lines event files written by
// workflow runtimes.
//
// Each line is one Record:
//
//	{"kind":"execution","workflow_id":"wf-1","duration_ms":1200,"success":true,...}
//	{"kind":"node","workflow_id":"wf-1","node_id":"fetch","duration_ms":300,...}
//
// Reader.Poll reads every complete line appended since the last poll and
// hands it to the caller. A trailing line without '\n' is left for the next
// poll. Malformed lines are logged and skipped. A file that shrinks is
// treated as rotated and re-read from the start.
//
// Offsets are checkpointed to a JSON file (write to temp, then rename) so a
// restarted agent resumes where it stopped. Records handed to the caller
// before a crash but after the last checkpoint are read again on restart.
//
// Reader.Run polls whenever fsnotify reports a change in the directory and
// on a fallback ticker.
package spool
