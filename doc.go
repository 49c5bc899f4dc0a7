// Package streamsink accepts user, order, notification and generic event
// messages, publishes them to a partitioned broker and, on the consuming
// side, persists them to a relational store with bounded retries and a
// dead-letter stream for messages that keep failing.
//
// # Features
//
//   - Publisher with validation and JSON encoding, keyed by message id
//   - Dispatcher with fixed (default) or exponential backoff between attempts
//   - Dead-letter records carrying the original stream, partition, key and payload
//   - Panics in handlers are recovered and treated as failed attempts
//   - Graceful shutdown: in-flight attempts finish, pending retries are abandoned
//     and the message is left uncommitted for redelivery
//   - Kafka (IBM/sarama) and in-memory broker adapters
//   - MySQL, PostgreSQL and SQLite via Relica adapters, with embedded migrations
//   - Pluggable Logger and NotificationService (logging, OpenTelemetry metrics)
//
// # Quick Start
//
//	producer, _ := kafka.NewProducer(kafkaCfg)
//	source, _ := kafka.NewSource(kafkaCfg, logger)
//	repos := relica.NewRepositories(db, "postgres")
//
//	dispatcher, _ := streamsink.NewDispatcher(
//	    streamsink.WithProducer(producer),
//	    streamsink.WithLogger(logger),
//	    streamsink.WithDeadLetterStream("deadletter-topic"),
//	)
//
//	consumer, _ := streamsink.NewConsumer(
//	    streamsink.WithConsumerSource(source),
//	    streamsink.WithConsumerDispatcher(dispatcher),
//	    streamsink.WithConsumerLogger(logger),
//	    streamsink.WithHandler("users-topic", streamsink.NewUserSink(repos.User, logger)),
//	)
//
//	go consumer.Run(ctx)
//
// Publish a message:
//
//	publisher, _ := streamsink.NewPublisher(
//	    streamsink.WithPublisherProducer(producer),
//	    streamsink.WithPublisherLogger(logger),
//	)
//	result, err := publisher.PublishUser(ctx, model.User{ID: "u1", Name: "Ann"})
//
// # Message Flow
//
//  1. PUBLISH
//     HTTP → Publisher → validate → JSON → broker (key = id)
//
//  2. CONSUME (one sequential worker per partition)
//     StreamSource → Consumer → Dispatcher → Handler
//     → On success: commit
//     → On failure: wait backoff, retry
//     → After MaxAttempts failures: publish DeadLetterRecord, commit
//
//  3. DEAD LETTERS
//     Dead-letter stream → DeadLetterArchiveSink → dead_letters table
//     → Operator resolves via REST API
//
// # Retry Strategy
//
// The default is three attempts with a fixed one second backoff:
//
//	Attempt 1: Immediate
//	Attempt 2: +1 second
//	Attempt 3: +1 second (dead-lettered on failure)
//
// # Database Schema
//
//	users          - User rows keyed by id
//	orders         - Order rows keyed by id
//	notifications  - Notification rows keyed by id
//	events         - Generic events with re-serialized payload_json
//	dead_letters   - Archive of dead-lettered records
package streamsink
