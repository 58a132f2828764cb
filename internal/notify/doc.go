// Package notify composes run notifications and delivers them by SMTP or, when no mail server is
// configured, through the log.
package notify
