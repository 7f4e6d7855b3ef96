// Package validator validates request and domain structs with
// go-playground/validator v10 and English messages.
//
// Besides the built-in tags it registers "otp" (exactly six ASCII digits) and
// "b64url" (an unpadded base64url token). Failures come back as a
// V10ValidationError keyed by snake_case field name.
package validator
