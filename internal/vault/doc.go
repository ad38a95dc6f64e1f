// Package vault resolves vault-relative score paths against the host
// document store and reads them.
//
// Paths are normalized to Unicode NFC before lookup so that notes written on
// different platforms refer to the same file, and a path may never escape the
// vault root. OpenExternally hands a file to the desktop's default
// application; mobile hosts report services.ErrUnsupportedPlatform.
package vault
