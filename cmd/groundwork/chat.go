// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/storage"
	"github.com/urfave/cli/v2"
)

const chatHelp = `Commands:
  /help      show this message
  /good      mark the last answer as helpful
  /bad       mark the last answer as unhelpful
  /history   show this session's turns
  /clear     forget this session's turns
  /quit      leave the chat`

func chatCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	kb, cfg, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	bot, err := kb.NewChatbot()
	if err != nil {
		return err
	}
	opts := chatOptions(retrievalRequest(c, cfg))
	if opts.SessionID == "" {
		opts.SessionID = bot.StartSession(ctx)
	}

	repl := &chatREPL{
		bot:     bot,
		opts:    opts,
		history: kb.Conversations(),
		in:      os.Stdin,
		out:     os.Stdout,
	}
	return repl.run(ctx)
}

// chatREPL reads questions line by line and streams the answers.
type chatREPL struct {
	bot     *chat.Bot
	opts    chat.Options
	history storage.ConversationRepository
	in      io.Reader
	out     io.Writer
}

func (r *chatREPL) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Session %s. Type /help for commands.\n", r.opts.SessionID)
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *chatREPL) handle(ctx context.Context, line string) (bool, error) {
	switch line {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
		return false, nil
	case "/good", "/bad":
		if err := r.bot.Feedback(ctx, line == "/good"); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Thanks for the feedback.")
		return false, nil
	case "/clear":
		if err := r.history.ClearSession(ctx, r.opts.SessionID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Conversation cleared.")
		return false, nil
	case "/history":
		return false, r.printHistory(ctx)
	}

	stream, err := r.bot.Stream(ctx, line, r.opts)
	if err != nil {
		return false, err
	}
	for fragment, err := range stream.Fragments {
		if err != nil {
			fmt.Fprintln(r.out)
			return false, err
		}
		fmt.Fprint(r.out, fragment)
	}
	fmt.Fprintln(r.out)
	printSources(r.out, stream.Sources)
	return false, nil
}

func (r *chatREPL) printHistory(ctx context.Context) error {
	turns, err := r.history.Turns(ctx, r.opts.SessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(r.out, "No turns yet.")
		return nil
	}
	for _, turn := range turns {
		fmt.Fprintf(r.out, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
	return nil
}
