// Package language normalizes language codes used for caption selection and
// for the speech recognizer's --language flag.
package language
