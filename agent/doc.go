// Package agent contains the conversable agent: an entity with a name that
// sends and receives messages, keeps one conversation log per peer and
// produces replies through a composed pipeline (message store, tool use,
// termination / human input, LLM completion).
//
// Two agents converse through InitiateChat, which drives a synchronous
// ping-pong until a termination stage ends the exchange or a turn limit is
// reached:
//
//	assistant := agent.NewConversableAgent("assistant", func(o *agent.Options) {
//	    o.Model = llm
//	})
//	user := agent.NewConversableAgent("user", func(o *agent.Options) {
//	    o.HumanInputMode = core.HumanInputNever
//	    o.MaxConsecutiveAutoReply = 3
//	})
//	res, err := user.InitiateChat(ctx, assistant, "What is 2+2?")
//
// Sequential chats carry summaries forward (InitiateChats); independent
// chats between disjoint pairs may run concurrently (InitiateChatsParallel).
package agent
