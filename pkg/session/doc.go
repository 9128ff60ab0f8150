// Package session tracks the state of one quiz-solving run: which question
// URLs were answered correctly, which are still wrong, the attempt counter for
// the current question and how long it has been open.
//
// A URL is never in both the correct set and the wrong list. A correct answer
// removes the URL from the wrong list; a wrong answer for a URL already solved
// is ignored.
package session
