// Package kafka adapts IBM/sarama to the streamsink Producer and StreamSource
// interfaces and provisions topics through the cluster admin API.
//
// Records are produced synchronously with acks from all in-sync replicas.
// A ProducerRecord partition hint (used for dead-letter records) is honoured
// modulo the target topic's partition count; records without a hint are
// placed by key hash.
//
// Consumption uses one consumer group for all streams. Each claimed
// partition is processed sequentially and an offset is marked only after
// the delivery function returned nil.
package kafka
