// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package api

// APIVersion is the version of the JSON API. It is incremented when a change
// breaks existing clients.
const APIVersion = 1
