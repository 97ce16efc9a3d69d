// Package testutil provides clocks, keys and fakes shared by package tests.
package testutil
