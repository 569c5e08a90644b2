// Package qrcode renders strings as PNG QR codes, either as raw bytes or as
// base64 data: URLs for inline HTML embedding. It is consumed by the auth
// module to render TOTP provisioning URIs for authenticator apps.
package qrcode
