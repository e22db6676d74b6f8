// Package query runs Claude as a long-lived process speaking the
// bidirectional stream-json protocol.
//
// Unlike the one-shot --print form, a Query keeps stdin open: the prompt is
// sent as a user message, responses arrive as typed OutputMessages, and an
// in-flight turn can be interrupted with a control request before the
// process is shut down.
//
//	q, err := query.Start(ctx,
//	    query.WithWorkdir("/path/to/project"),
//	    query.WithModel("sonnet"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	if err := q.Send(ctx, query.NewUserMessage("list files")); err != nil {
//	    return err
//	}
//	for msg := range q.Messages() {
//	    if msg.IsResult() {
//	        break
//	    }
//	}
//
// Messages are delivered in the order the process wrote them and are never
// dropped; a consumer that stops reading must call Close.
package query
