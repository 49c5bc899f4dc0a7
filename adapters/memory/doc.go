// Package memory provides an in-process partitioned broker and in-memory
// repositories. They back the "memory" broker mode of the server, the
// examples and the end-to-end tests; nothing here survives a restart.
//
// Example usage:
//
//	broker := memory.NewBroker(3)
//	repos := memory.NewRepositories()
//
//	dispatcher, _ := streamsink.NewDispatcher(
//	    streamsink.WithProducer(broker),
//	    streamsink.WithLogger(logger),
//	)
//	consumer, _ := streamsink.NewConsumer(
//	    streamsink.WithConsumerSource(broker),
//	    streamsink.WithConsumerDispatcher(dispatcher),
//	    streamsink.WithConsumerLogger(logger),
//	    streamsink.WithHandler("users-topic", streamsink.NewUserSink(repos.User, logger)),
//	)
package memory
