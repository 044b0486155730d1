// Package language validates and canonicalises subtitle language codes.
//
// Codes are parsed as BCP 47 tags with golang.org/x/text/language after a
// small alias table maps English word forms and bibliographic ISO 639-2 codes.
package language
