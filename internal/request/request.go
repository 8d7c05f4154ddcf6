/*
Copyright 2024 Skylane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package request is the small JSON HTTP helper shared by webhook delivery
// and operator alerts.
package request

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// ToJsonReq marshals a payload into a buffer ready to use as a request body.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(body), nil
}

// Call sends the request with a JSON content type and decodes the response
// body into response. The raw *http.Response is returned alongside any
// decode error so callers can still branch on the status code.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return resp, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return resp, err
	}
	return resp, nil
}

// BasicAuth encodes credentials for an Authorization: Basic header.
func BasicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
