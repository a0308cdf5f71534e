// Package mail delivers the email reminder channel.
//
// It mirrors the storage layer's driver shape: Open returns (nil, nil) when
// no driver is configured, a SendGrid driver handles real delivery, and a
// console driver logs rendered mail for development.
package mail
