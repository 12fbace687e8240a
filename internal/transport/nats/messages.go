// SPDX-License-Identifier: Apache-2.0

package nats

import "encoding/json"

// WakeMessage asks a worker to run a replay pass for one instance, typically
// after an external event was delivered through the API process.
type WakeMessage struct {
	InstanceID string `json:"instance_id"`
}

func EncodeWake(instanceID string) ([]byte, error) {
	return json.Marshal(WakeMessage{InstanceID: instanceID})
}

func DecodeWake(data []byte) (WakeMessage, error) {
	var msg WakeMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
