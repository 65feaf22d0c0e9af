// Package ui holds the console's HTML templates and stylesheet.
//
// Pages are rendered inside templates/layout.html, which defines the
// "layout" template and expects each page file to define "title" and
// "content".
package ui
